// Package mock provides a test double for the stt.Provider interface.
//
// Pre-populate Results with the transcripts the consumer should receive;
// each Transcribe call consumes the next entry. Inspect TranscribeCalls to
// assert on the audio that was delivered.
package mock

import (
	"context"
	"sync"

	"github.com/0xChin/ricardo/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Req is the request passed to Transcribe, with PCM copied.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is the queue of results returned by successive Transcribe
	// calls. When exhausted (or empty), Result is returned instead.
	Results []*stt.Result

	// Result is the fallback result returned once Results is exhausted.
	// When nil, an empty Result is returned.
	Result *stt.Result

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// ModelIDResult is returned by ModelID. Defaults to "mock".
	ModelIDResult string

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next queued result.
func (p *Provider) Transcribe(_ context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := req
	cp.PCM = make([]byte, len(req.PCM))
	copy(cp.PCM, req.PCM)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Req: cp})

	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if len(p.Results) > 0 {
		r := p.Results[0]
		p.Results = p.Results[1:]
		return r, nil
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Result{}, nil
}

// ModelID returns ModelIDResult or "mock".
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ModelIDResult != "" {
		return p.ModelIDResult
	}
	return "mock"
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
