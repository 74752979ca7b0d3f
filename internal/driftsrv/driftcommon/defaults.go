package driftcommon

// DefaultConfigFile is where the service looks for its config when no
// -config flag is given.
const DefaultConfigFile = "/etc/driftline/driftline.conf"
