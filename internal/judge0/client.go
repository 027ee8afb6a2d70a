package judge0

import (
	"bytes"
	"code_arena_backend/internal/config"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SubmissionRequest 一条待判测试执行，文本字段为原文，编码由客户端负责
type SubmissionRequest struct {
	SourceCode     string
	Stdin          string
	ExpectedOutput string
	LanguageID     int
	CPUTimeLimit   float64
	MemoryLimit    int
}

// Submission 引擎返回的单条判题结果，文本字段已解码，缺失字段为 nil
type Submission struct {
	Token         string
	Status        Status
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	Message       *string
	Time          string // 秒，十进制字符串，如 "0.01"
	Memory        float64
}

// TransportError 判题引擎不可达或返回非 2xx
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("judge0: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("judge0: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client 判题引擎批量接口的底层客户端，无状态，纯请求/响应
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

func NewClient(cfg *config.Judge0Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

type wireSubmission struct {
	SourceCode     string  `json:"source_code"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output"`
	LanguageID     int     `json:"language_id"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type wireResult struct {
	Token  string `json:"token"`
	Status struct {
		ID Status `json:"id"`
	} `json:"status"`
	Stdout        *string     `json:"stdout"`
	Stderr        *string     `json:"stderr"`
	CompileOutput *string     `json:"compile_output"`
	Message       *string     `json:"message"`
	Time          string      `json:"time"`
	Memory        json.Number `json:"memory"`
}

// SubmitBatch 批量提交，按请求顺序返回 token。调用方不能假设部分成功：
// 任何网络或非 2xx 错误整批失败（引擎在结果负载里报告的单条失败属正常结果）。
func (c *Client) SubmitBatch(ctx context.Context, requests []SubmissionRequest) ([]string, error) {
	payload := make([]wireSubmission, 0, len(requests))
	for _, r := range requests {
		payload = append(payload, wireSubmission{
			SourceCode:     base64.StdEncoding.EncodeToString([]byte(r.SourceCode)),
			Stdin:          base64.StdEncoding.EncodeToString([]byte(r.Stdin)),
			ExpectedOutput: base64.StdEncoding.EncodeToString([]byte(r.ExpectedOutput)),
			LanguageID:     r.LanguageID,
			CPUTimeLimit:   r.CPUTimeLimit,
			MemoryLimit:    r.MemoryLimit,
		})
	}

	body, err := json.Marshal(map[string]interface{}{"submissions": payload})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/submissions/batch?base64_encoded=true", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "submit batch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Op: "submit batch", StatusCode: resp.StatusCode}
	}

	var created []struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &TransportError{Op: "submit batch", Err: err}
	}
	if len(created) != len(requests) {
		return nil, &TransportError{Op: "submit batch",
			Err: fmt.Errorf("engine returned %d tokens for %d submissions", len(created), len(requests))}
	}

	tokens := make([]string, len(created))
	for i, item := range created {
		tokens[i] = item.Token
	}
	return tokens, nil
}

// FetchBatch 按 token 列表查询批次状态。引擎不保证返回顺序与请求一致，
// 调用方必须按 token 关联结果，不能按位置。
func (c *Client) FetchBatch(ctx context.Context, tokens []string) ([]Submission, error) {
	endpoint := fmt.Sprintf("%s/submissions/batch?tokens=%s&base64_encoded=true",
		c.baseURL, url.QueryEscape(strings.Join(tokens, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch batch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Op: "fetch batch", StatusCode: resp.StatusCode}
	}

	var wire struct {
		Submissions []wireResult `json:"submissions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &TransportError{Op: "fetch batch", Err: err}
	}

	results := make([]Submission, 0, len(wire.Submissions))
	for _, w := range wire.Submissions {
		sub := Submission{
			Token:  w.Token,
			Status: w.Status.ID,
			Time:   w.Time,
		}
		if w.Memory != "" {
			mem, err := w.Memory.Float64()
			if err != nil {
				return nil, &TransportError{Op: "fetch batch", Err: fmt.Errorf("bad memory value %q: %w", w.Memory, err)}
			}
			sub.Memory = mem
		}
		if sub.Stdout, err = decodeField(w.Stdout); err != nil {
			return nil, &TransportError{Op: "fetch batch", Err: err}
		}
		if sub.Stderr, err = decodeField(w.Stderr); err != nil {
			return nil, &TransportError{Op: "fetch batch", Err: err}
		}
		if sub.CompileOutput, err = decodeField(w.CompileOutput); err != nil {
			return nil, &TransportError{Op: "fetch batch", Err: err}
		}
		if sub.Message, err = decodeField(w.Message); err != nil {
			return nil, &TransportError{Op: "fetch batch", Err: err}
		}
		results = append(results, sub)
	}
	return results, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Token", c.authToken)
}

// decodeField 解码 base64 文本字段，缺失保持 nil 而不是空字符串
func decodeField(field *string) (*string, error) {
	if field == nil {
		return nil, nil
	}
	// 引擎偶尔会在 base64 输出里带换行
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*field, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode base64 field: %w", err)
	}
	decoded := string(raw)
	return &decoded, nil
}
