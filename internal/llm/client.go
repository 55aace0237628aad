// Package llm wraps a single text-generation backend behind a
// template-in, Result-out contract. Backend failures never escape a Client;
// they come back as a Result with Failed set.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/asave/internal/engine"
)

// ErrTransport wraps any failure of the backend call itself.
var ErrTransport = errors.New("language model call failed")

// Generator is the backend a Client drives. engine.Engine satisfies it.
type Generator interface {
	Generate(ctx context.Context, req engine.GenerateRequest) (string, error)
}

// Result is the outcome of one generation. On failure Text holds a
// diagnostic string and Err the cause.
type Result struct {
	Text   string `json:"text"`
	Failed bool   `json:"error,omitempty"`
	Err    error  `json:"-"`
}

// Failure builds a failed Result for err.
func Failure(err error) Result {
	return Result{Text: "Error: " + err.Error(), Failed: true, Err: err}
}

// Client fills prompt templates and sends them to a Generator. The system
// instruction is fixed at construction and prepended to every prompt.
type Client struct {
	gen         Generator
	model       string
	system      string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithSystemInstruction(s string) Option {
	return func(c *Client) { c.system = s }
}

func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithTimeout bounds every call. Zero means no client-side deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client for the given backend and model.
func NewClient(gen Generator, model string, opts ...Option) *Client {
	c := &Client{
		gen:         gen,
		model:       model,
		temperature: 0.2,
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Temperature reports the sampling temperature used for every call.
func (c *Client) Temperature() float32 { return c.temperature }

// SystemInstruction reports the configured system instruction.
func (c *Client) SystemInstruction() string { return c.system }

// Generate binds vars into t and runs the resulting prompt. A binding
// failure is reported as a failed Result carrying a *BindingError and the
// backend is not called.
func (c *Client) Generate(ctx context.Context, t Template, vars Vars) Result {
	inv, err := t.Bind(vars)
	if err != nil {
		c.logger.Error("prompt binding failed", zap.String("template", t.Name()), zap.Error(err))
		return Failure(err)
	}
	return c.complete(ctx, inv)
}

// GenerateText runs prompt verbatim (after the system instruction).
func (c *Client) GenerateText(ctx context.Context, prompt string) Result {
	return c.complete(ctx, Invocation{Template: "raw", Prompt: prompt})
}

func (c *Client) complete(ctx context.Context, inv Invocation) (res Result) {
	prompt := inv.Prompt
	if c.system != "" {
		prompt = c.system + "\n\n" + prompt
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: backend panic: %v", ErrTransport, r)
			c.logger.Error("generation panicked", zap.String("template", inv.Template), zap.Error(err))
			res = Failure(err)
		}
	}()

	text, err := c.gen.Generate(ctx, engine.GenerateRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: c.temperature,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		c.logger.Warn("generation failed", zap.String("template", inv.Template), zap.Error(err))
		return Failure(err)
	}
	return Result{Text: text}
}
