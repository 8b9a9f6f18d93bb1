package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domai "github.com/bryanwahyu/finsight/internal/domain/ai"
)

type stubClient struct {
	got string
	out string
	err error
}

func (s *stubClient) Explain(_ context.Context, resultJSON string) (string, error) {
	s.got = resultJSON
	return s.out, s.err
}

func TestExplain_CompactsInputAndReturnsObject(t *testing.T) {
	c := &stubClient{out: ` {"summary":"ok"} `}
	svc := NewService(c)

	out, err := svc.Explain(context.Background(), []byte("{ \"iscr_flag\": 1 }"))
	require.NoError(t, err)
	require.Equal(t, `{"iscr_flag":1}`, c.got)
	require.JSONEq(t, `{"summary":"ok"}`, string(out))
}

func TestExplain_RejectsNonObjectInput(t *testing.T) {
	svc := NewService(&stubClient{out: `{}`})
	for _, in := range []string{"", "[1,2]", "42", "{"} {
		_, err := svc.Explain(context.Background(), []byte(in))
		require.ErrorIs(t, err, domai.ErrInvalidResult, in)
	}
}

func TestExplain_BadProviderResponse(t *testing.T) {
	svc := NewService(&stubClient{out: "Sure! Here is your summary"})
	_, err := svc.Explain(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, domai.ErrBadResponse)
}

func TestExplain_PropagatesClientError(t *testing.T) {
	svc := NewService(&stubClient{err: domai.ErrQuotaExceeded})
	_, err := svc.Explain(context.Background(), []byte(`{}`))
	require.True(t, errors.Is(err, domai.ErrQuotaExceeded))
}
