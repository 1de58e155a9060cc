package clickurl

import (
	"errors"
	"net/url"
	"strconv"
)

// ErrMissingParams is returned when a click query lacks a required parameter.
var ErrMissingParams = errors.New("missing required parameters (ad, d, m, t, u, sig)")

// Query parameter names of a signed click URL.
const (
	paramAdID        = "ad"
	paramDecisionID  = "d"
	paramMode        = "m"
	paramTimestamp   = "t"
	paramDestination = "u"
	paramSignature   = "sig"
)

// URL returns endpoint with p and its signature encoded as query parameters.
func (s *Signer) URL(endpoint string, p ClickParams) string {
	q := url.Values{}
	q.Set(paramAdID, p.AdID)
	q.Set(paramDecisionID, p.DecisionID)
	q.Set(paramMode, p.Mode)
	q.Set(paramTimestamp, strconv.FormatInt(p.Timestamp, 10))
	q.Set(paramDestination, p.DestinationURL)
	q.Set(paramSignature, s.Sign(p.Message()))

	return endpoint + "?" + q.Encode()
}

// ParseQuery extracts click parameters and the signature from q.
func ParseQuery(q url.Values) (ClickParams, string, error) {
	adID := q.Get(paramAdID)
	decisionID := q.Get(paramDecisionID)
	tStr := q.Get(paramTimestamp)
	dest := q.Get(paramDestination)
	sig := q.Get(paramSignature)

	if adID == "" || decisionID == "" || tStr == "" || dest == "" || sig == "" {
		return ClickParams{}, "", ErrMissingParams
	}

	t, err := strconv.ParseInt(tStr, 10, 64)
	if err != nil {
		return ClickParams{}, "", ErrMissingParams
	}

	return ClickParams{
		AdID:           adID,
		DecisionID:     decisionID,
		Mode:           q.Get(paramMode),
		Timestamp:      t,
		DestinationURL: dest,
	}, sig, nil
}
