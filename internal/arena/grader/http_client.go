package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/hojin-dev/quiz-arena/internal/arena/question"
)

// HTTPClient talks to the grading oracle over HTTP. One POST per round:
// question plus both submissions in, one grade per submission out.
type HTTPClient struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type HTTPOption func(*HTTPClient)

func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) { c.timeout = d }
}

func WithMaxConnsPerHost(n int) HTTPOption {
	return func(c *HTTPClient) { c.http.MaxConnsPerHost = n }
}

func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 20 * time.Second, WriteTimeout: 20 * time.Second, MaxConnsPerHost: 32},
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gradeRequest struct {
	Question    gradeQuestion `json:"question"`
	Submissions []Submission  `json:"submissions"`
}

type gradeQuestion struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	Prompt     string `json:"prompt"`
	Answer     string `json:"answer"`
}

type gradeResponse struct {
	Grades []Grade `json:"grades"`
}

// Grade posts the round to the oracle. No internal retry: a slow oracle
// already stalls the grading phase, so failures propagate to the caller
// which aborts the round.
func (c *HTTPClient) Grade(ctx context.Context, q question.Question, subs []Submission) ([]Grade, error) {
	body, err := json.Marshal(gradeRequest{
		Question: gradeQuestion{
			ID:         q.ID,
			Type:       string(q.Type),
			Difficulty: string(q.Difficulty),
			Prompt:     q.Prompt,
			Answer:     q.Answer,
		},
		Submissions: subs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal grade request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.baseURL + "/grade")
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return nil, fmt.Errorf("grade request failed: %w", err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return nil, fmt.Errorf("grader error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
	}

	var out gradeResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("decode grade response: %w", err)
	}
	if len(out.Grades) != len(subs) {
		return nil, fmt.Errorf("grader returned %d grades for %d submissions", len(out.Grades), len(subs))
	}
	for i := range out.Grades {
		if out.Grades[i].Score < 0 {
			out.Grades[i].Score = 0
		}
		if out.Grades[i].Score > 10 {
			out.Grades[i].Score = 10
		}
	}
	return out.Grades, nil
}

func (c *HTTPClient) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
