package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
)

// MockReporter is a mock error reporter
type MockReporter struct {
	mock.Mock
}

func NewMockReporter(t *testing.T) *MockReporter {
	m := &MockReporter{}
	m.Test(t)
	return m
}

func (m *MockReporter) Report(ctx context.Context, title, body string) error {
	args := m.Called(ctx, title, body)
	return args.Error(0)
}

// ExpectReport sets up expectation for a report whose title satisfies match
func (m *MockReporter) ExpectReport(match func(title string) bool, err error) *mock.Call {
	return m.On("Report", mock.Anything, mock.MatchedBy(match), mock.Anything).Return(err)
}

// RecordingReporter keeps every report it receives
type RecordingReporter struct {
	mu      sync.Mutex
	Reports []RecordedReport
}

type RecordedReport struct {
	Title string
	Body  string
}

func (r *RecordingReporter) Report(ctx context.Context, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, RecordedReport{Title: title, Body: body})
	return nil
}

func (r *RecordingReporter) All() []RecordedReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedReport(nil), r.Reports...)
}

// StaticEC2Detector answers IsEC2Instance with a fixed value
type StaticEC2Detector bool

func (d StaticEC2Detector) IsEC2Instance(ctx context.Context) bool {
	return bool(d)
}
