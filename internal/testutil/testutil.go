package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/rng"
)

// TestConfig creates a test configuration with an in-memory ledger
func TestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ledger.Backend = "badger"
	cfg.Ledger.InMemory = true
	cfg.Ledger.DataPath = ""
	cfg.Metrics.Enabled = true
	cfg.Logging = logging.TestLoggingConfig()
	return cfg
}

// TestLogger creates a logger that discards everything
func TestLogger() *logging.Logger {
	return logging.Discard()
}

// Conversation returns a synthetic conversation with one-second spacing
func Conversation(messages, agents int) conversation.Conversation {
	return conversation.Synthetic(messages, agents, time.Second)
}

// ThreadedConversation returns a conversation in which each message replies
// to the previous one
func ThreadedConversation(messages, agents int) conversation.Conversation {
	return conversation.Threaded(messages, agents, time.Second)
}

// AssertHTTPStatus verifies that the HTTP response has the expected status code
func AssertHTTPStatus(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int) {
	t.Helper()

	if recorder.Code != expectedStatus {
		t.Errorf("Expected HTTP status %d, got %d (body: %s)", expectedStatus, recorder.Code, recorder.Body.String())
	}
}

// AssertContains verifies that a string contains a substring
func AssertContains(t *testing.T, str, substr string) {
	t.Helper()

	if !strings.Contains(str, substr) {
		t.Errorf("Expected string to contain %s, but it doesn't: %s", substr, str)
	}
}

// AssertSameMessages fails unless both sequences carry the same messages in
// the same order with the same timestamps and content
func AssertSameMessages(t *testing.T, want, got []conversation.Message) {
	t.Helper()

	if len(want) != len(got) {
		t.Fatalf("Expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.ID != g.ID || w.Content != g.Content || !w.Timestamp.Equal(g.Timestamp) {
			t.Fatalf("Message %d differs: expected %s %q at %s, got %s %q at %s",
				i, w.ID, w.Content, w.Timestamp, g.ID, g.Content, g.Timestamp)
		}
	}
}

// WithTimeout runs a test function with a timeout
func WithTimeout(t *testing.T, timeout time.Duration, fn func()) {
	t.Helper()

	done := make(chan bool, 1)

	go func() {
		fn()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("Test timed out after %v", timeout)
	}
}

// MockHTTPRequest creates a mock HTTP request for testing
func MockHTTPRequest(method, url string, body string) *http.Request {
	if body != "" {
		return httptest.NewRequest(method, url, strings.NewReader(body))
	}
	return httptest.NewRequest(method, url, nil)
}

// ConcurrentTest runs testFunc on concurrency goroutines and fails on any panic
func ConcurrentTest(t *testing.T, concurrency int, testFunc func(int)) {
	t.Helper()

	done := make(chan bool, concurrency)
	errors := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		go func(index int) {
			defer func() {
				if r := recover(); r != nil {
					errors <- fmt.Errorf("goroutine %d panicked: %v", index, r)
				}
				done <- true
			}()

			testFunc(index)
		}(i)
	}

	for i := 0; i < concurrency; i++ {
		<-done
	}

	select {
	case err := <-errors:
		t.Fatalf("Concurrent test failed: %v", err)
	default:
	}
}

// TestDataGenerator builds irregular conversations reproducibly from a seed
type TestDataGenerator struct {
	gen *rng.Generator
}

func NewTestDataGenerator(seed int64) *TestDataGenerator {
	return &TestDataGenerator{gen: rng.New(seed)}
}

// Conversation returns n messages from the given number of agents with
// random senders, gaps of up to five seconds, random content and, with
// probability replyRate, a parent link to an earlier message.
func (tdg *TestDataGenerator) Conversation(n, agents int, replyRate float64) conversation.Conversation {
	c := conversation.Synthetic(0, agents, time.Second)
	c.ID = fmt.Sprintf("generated-%d", tdg.gen.Seed())

	ts := conversation.SyntheticEpoch
	for i := 0; i < n; i++ {
		sender, _ := rng.Choice(tdg.gen, c.Agents)
		gap, _ := tdg.gen.NextInt(0, 5000)
		ts = ts.Add(time.Duration(gap) * time.Millisecond)
		length, _ := tdg.gen.NextInt(0, 40)
		content, _ := tdg.gen.String(length, "")

		msg := conversation.Message{
			ID:        fmt.Sprintf("gen-%04d", i),
			AgentID:   sender.ID,
			Content:   content,
			Timestamp: ts,
		}
		if i > 0 {
			if reply, _ := tdg.gen.NextBoolean(replyRate); reply {
				parent, _ := tdg.gen.NextInt(0, i-1)
				msg.ParentMessageID = c.Messages[parent].ID
			}
		}
		c.Messages = append(c.Messages, msg)
	}
	return c
}
