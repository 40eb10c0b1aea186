package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Prediction mirrors the payload returned by POST /predict.
type Prediction struct {
	Genre        string       `json:"genre"`
	Source       string       `json:"source"`
	FeaturesUsed FlexString   `json:"features_used"`
	Top3         []GenreScore `json:"top3"`

	// Raw keeps the undecoded body so callers can surface fields this client
	// does not model.
	Raw json.RawMessage `json:"-"`
}

// GenreScore is one entry of the ranked top3 list.
type GenreScore struct {
	Genre string  `json:"genre"`
	Prob  float64 `json:"prob"`
}

// DisplayGenre returns the genre label lower-cased for display.
func (p *Prediction) DisplayGenre() string {
	if p == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(p.Genre))
}

// Health mirrors the informational body served on GET /.
type Health struct {
	Message          string `json:"message"`
	ExpectedFeatures int    `json:"expected_features"`
	Use              string `json:"use"`

	Status  int           `json:"-"`
	Latency time.Duration `json:"-"`
}

// errorBody is the shape of every non-2xx JSON response.
type errorBody struct {
	Error string `json:"error"`
}

// FlexString decodes a JSON string or number into its textual form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Int returns the value as an integer when it is numeric.
func (f FlexString) Int() (int, bool) {
	n, err := strconv.Atoi(string(f))
	if err != nil {
		return 0, false
	}
	return n, true
}
