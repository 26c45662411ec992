// Package places queries a Places autocomplete API so players can name and
// locate the territories they run through.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUpstream wraps non-2xx responses and transport failures.
var ErrUpstream = errors.New("places upstream error")

// ErrEmptyQuery is returned when Search is called without input.
var ErrEmptyQuery = errors.New("query is required")

// Circle biases results towards an area.
type Circle struct {
	Latitude  float64
	Longitude float64
	RadiusM   float64
}

// Suggestion is one autocomplete result.
type Suggestion struct {
	Text     string `json:"text"`
	MainText string `json:"main_text,omitempty"`
	PlaceID  string `json:"place_id,omitempty"`
}

// Client calls the autocomplete endpoint.
type Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a Client. host is sent as x-rapidapi-host.
func NewClient(baseURL, host, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    host,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type autocompleteRequest struct {
	Input                   string        `json:"input"`
	LocationBias            *locationBias `json:"locationBias,omitempty"`
	IncludeQueryPredictions bool          `json:"includeQueryPredictions"`
}

type locationBias struct {
	Circle struct {
		Center latLng  `json:"center"`
		Radius float64 `json:"radius"`
	} `json:"circle"`
}

type formattedText struct {
	Text string `json:"text"`
}

type prediction struct {
	PlaceID          string        `json:"placeId"`
	Text             formattedText `json:"text"`
	StructuredFormat struct {
		MainText formattedText `json:"mainText"`
	} `json:"structuredFormat"`
}

type autocompleteResponse struct {
	Suggestions []struct {
		PlacePrediction *prediction `json:"placePrediction"`
		QueryPrediction *prediction `json:"queryPrediction"`
	} `json:"suggestions"`
}

// Search returns autocomplete suggestions for input, optionally biased to an area.
func (c *Client) Search(ctx context.Context, input string, bias *Circle) ([]Suggestion, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyQuery
	}

	reqBody := autocompleteRequest{Input: input, IncludeQueryPredictions: true}
	if bias != nil {
		lb := &locationBias{}
		lb.Circle.Center = latLng{Latitude: bias.Latitude, Longitude: bias.Longitude}
		lb.Circle.Radius = bias.RadiusM
		reqBody.LocationBias = lb
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/places:autocomplete", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-FieldMask", "*")
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("x-rapidapi-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload autocompleteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	out := make([]Suggestion, 0, len(payload.Suggestions))
	for _, s := range payload.Suggestions {
		p := s.PlacePrediction
		if p == nil {
			p = s.QueryPrediction
		}
		if p == nil || p.Text.Text == "" {
			continue
		}
		out = append(out, Suggestion{Text: p.Text.Text, MainText: p.StructuredFormat.MainText.Text, PlaceID: p.PlaceID})
	}
	return out, nil
}
