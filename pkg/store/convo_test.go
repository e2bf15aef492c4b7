package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvoKey_CanonicalizesPairOrder(t *testing.T) {
	req := require.New(t)

	req.Equal(ConvoKey("alice", "bob"), ConvoKey("bob", "alice"))
	req.Equal("alice:bob", ConvoKey("bob", "alice"))
	req.NotEqual(ConvoKey("alice", "bob"), ConvoKey("alice", "carol"))
}

func TestSubmitMessage_RejectsInvalidInput(t *testing.T) {
	req := require.New(t)
	g := NewGateway(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"missing sender", SubmitInput{ReceiverID: "bob", Text: "hi"}},
		{"missing receiver", SubmitInput{SenderID: "alice", Text: "hi"}},
		{"self message", SubmitInput{SenderID: "alice", ReceiverID: "alice", Text: "hi"}},
		{"no text and no attachment", SubmitInput{SenderID: "alice", ReceiverID: "bob"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.SubmitMessage(context.Background(), tc.in)
			req.Error(err)
		})
	}
}

func TestSubmitInput_AttachmentOnlyIsValid(t *testing.T) {
	req := require.New(t)
	g := NewGateway(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Attachment without text passes validation; validate only, since there
	// is no database behind this gateway.
	err := g.validate.Struct(SubmitInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		FileURL:    "/uploads/pitchdeck.pdf",
		FileType:   "application/pdf",
	})
	req.NoError(err)
}
