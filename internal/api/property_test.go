package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/testutil"
)

func TestAPIProperties(t *testing.T) {
	s := setupTestRESTHandler(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	// Property 1: the HTTP surface returns exactly what the library computes
	properties.Property("HTTP inject matches library inject", prop.ForAll(
		func(seed int64, messages int, rate float64) bool {
			conv := testutil.Conversation(messages, 3)
			plan := []chaos.Configuration{{Seed: chaos.Int64(seed), Parameters: chaos.MessageLoss{LossRate: rate}}}

			rr := s.do(t, http.MethodPost, "/api/v1/inject", InjectRequest{Conversation: conv, Configurations: plan})
			if rr.Code != http.StatusOK {
				return false
			}
			var resp InjectResponse
			decodeBody(t, rr, &resp)

			want, err := chaos.NewInjector().Inject(context.Background(), conv, plan)
			if err != nil {
				return false
			}
			return resp.Result.Fingerprint == want.Result.Fingerprint &&
				len(resp.Conversation.Messages) == len(want.Conversation.Messages)
		},
		gen.Int64Range(1, 1<<31-2),
		gen.IntRange(1, 40),
		gen.Float64Range(0, 1),
	))

	// Property 2: every recorded run replays to the same fingerprint
	properties.Property("recorded runs replay", prop.ForAll(
		func(seed int64, window int) bool {
			conv := testutil.ThreadedConversation(12, 2)
			plan := []chaos.Configuration{
				{Seed: chaos.Int64(seed), Parameters: chaos.Reorder{WindowSize: window, MaxDisplacement: window - 1, PreserveCausality: true}},
			}

			rr := s.do(t, http.MethodPost, "/api/v1/inject", InjectRequest{Conversation: conv, Configurations: plan})
			if rr.Code != http.StatusOK {
				return false
			}
			var injected InjectResponse
			decodeBody(t, rr, &injected)

			rr = s.do(t, http.MethodPost, "/api/v1/runs/"+injected.Result.Fingerprint+"/replay", ReplayRequest{Conversation: conv})
			if rr.Code != http.StatusOK {
				return false
			}
			var replayed ReplayResponse
			decodeBody(t, rr, &replayed)
			return replayed.Verification.Reproduced
		},
		gen.Int64Range(1, 1<<31-2),
		gen.IntRange(2, 6),
	))

	properties.TestingRun(t)
}
