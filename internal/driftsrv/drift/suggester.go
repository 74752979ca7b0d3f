package drift

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/rs/zerolog/log"
)

// Mapping is a proposed field mapping for a drift: old leaf path to new
// leaf path.
type Mapping map[string]string

// Suggester scores a structural diff. Implementations may call out to an
// external mapping-suggestion service; the classifier treats the result as
// opaque advice and blends it into its own score.
type Suggester interface {
	Suggest(ctx context.Context, d schema.Diff) (Mapping, float64, apperrors.Error)
}

type suggestRequest struct {
	Diff schema.Diff `json:"diff"`
}

type suggestResponse struct {
	Mapping    Mapping `json:"mapping"`
	Confidence float64 `json:"confidence"`
}

type httpSuggester struct {
	url    string
	client *http.Client
}

// NewHTTPSuggester returns a Suggester backed by the external mapping
// suggestion service. Returns nil when no URL is configured; the classifier
// handles a nil suggester by scoring from the diff alone.
func NewHTTPSuggester(url string) Suggester {
	if url == "" {
		return nil
	}
	return &httpSuggester{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *httpSuggester) Suggest(ctx context.Context, d schema.Diff) (Mapping, float64, apperrors.Error) {
	body, err := json.Marshal(suggestRequest{Diff: d})
	if err != nil {
		return nil, 0, ErrSuggestionFailed.Err(err)
	}

	var rsp suggestResponse
	err = retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		res, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			io.Copy(io.Discard, res.Body)
			return ErrSuggestionFailed.Msg("suggestion service returned " + res.Status)
		}
		return json.NewDecoder(res.Body).Decode(&rsp)
	}, retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n).Msg("suggestion request failed")
		}))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("suggestion service unavailable")
		return nil, 0, ErrSuggestionFailed.Err(err)
	}

	if rsp.Confidence < 0 || rsp.Confidence > 1 {
		return nil, 0, ErrSuggestionFailed.Msg("suggestion confidence out of range")
	}

	return rsp.Mapping, rsp.Confidence, nil
}
