package executil

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type scriptedRunner map[string]struct {
	out string
	err error
}

func (s scriptedRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	res, ok := s[key]
	if !ok {
		return nil, errors.New("unexpected command: " + key)
	}
	return []byte(res.out), res.err
}

func TestFirstOutput(t *testing.T) {
	r := scriptedRunner{
		"cat /missing":         {err: errors.New("exit status 1")},
		"uuidgen":              {out: "  \n"},
		"openssl rand -hex 16": {out: "00112233445566778899aabbccddeeff\n"},
	}

	out, err := FirstOutput(context.Background(), r,
		[]string{"cat", "/missing"},
		[]string{"uuidgen"},
		[]string{"openssl", "rand", "-hex", "16"},
	)
	require.NoError(t, err)
	require.Equal(t, "00112233445566778899aabbccddeeff", out)
}

func TestFirstOutput_AllFail(t *testing.T) {
	errNotFound := errors.New("not found")
	r := scriptedRunner{
		"uuidgen": {err: errNotFound},
	}

	_, err := FirstOutput(context.Background(), r, []string{"uuidgen"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
	require.ErrorIs(t, err, errNotFound)
}

func TestFirstOutput_KeepsEveryCause(t *testing.T) {
	errCat := errors.New("no such file")
	errUUIDGen := errors.New("uuidgen: not found")
	r := scriptedRunner{
		"cat /proc/sys/kernel/random/uuid": {err: errCat},
		"uuidgen":                          {err: errUUIDGen},
	}

	_, err := FirstOutput(context.Background(), r,
		[]string{"cat", "/proc/sys/kernel/random/uuid"},
		[]string{"uuidgen"},
	)
	require.ErrorIs(t, err, errCat)
	require.ErrorIs(t, err, errUUIDGen)
}

func TestOSRunner_Output(t *testing.T) {
	out, err := OSRunner{}.Output(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	require.Equal(t, "hello", string(out))

	_, err = OSRunner{}.Output(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}
