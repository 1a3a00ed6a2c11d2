package publicip

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/miekg/dns"
	"github.com/ruteri/proxy-provisioning/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIPService(t *testing.T, status int, body string) *httptest.Server {
	mux := chi.NewRouter()
	mux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type staticResolver struct {
	addr netip.Addr
	err  error
}

func (s staticResolver) Resolve(ctx context.Context) (netip.Addr, error) { return s.addr, s.err }
func (s staticResolver) Name() string { return "static" }

type fakeRunner struct {
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.args = append([]string{name}, args...)
	return []byte(f.out), f.err
}

func TestHTTPResolver(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "ipv4", status: http.StatusOK, body: "203.0.113.7\n", want: "203.0.113.7"},
		{name: "ipv6", status: http.StatusOK, body: "2001:db8::1", want: "2001:db8::1"},
		{name: "mapped ipv4", status: http.StatusOK, body: "::ffff:203.0.113.7", want: "203.0.113.7"},
		{name: "empty body", status: http.StatusOK, body: "  ", wantErr: true},
		{name: "html error page", status: http.StatusOK, body: "<html>", wantErr: true},
		{name: "server error", status: http.StatusBadGateway, body: "203.0.113.7", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := newIPService(t, tc.status, tc.body)
			addr, err := NewHTTPResolver(srv.URL).Resolve(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, addr.String())
		})
	}
}

func TestCommandResolver(t *testing.T) {
	r := &fakeRunner{out: "198.51.100.4\n"}
	addr, err := (&CommandResolver{URL: DefaultServiceURL, Runner: r}).Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "198.51.100.4", addr.String())
	require.Equal(t, "curl", r.args[0])
	require.Equal(t, DefaultServiceURL, r.args[len(r.args)-1])

	_, err = (&CommandResolver{URL: DefaultServiceURL, Runner: &fakeRunner{err: errors.New("exit status 6")}}).Resolve(context.Background())
	require.Error(t, err)
}

func TestDNSResolver(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			if q.Name != OpenDNSName {
				m.Rcode = dns.RcodeNameError
				w.WriteMsg(m)
				return
			}
			switch q.Qtype {
			case dns.TypeA:
				rr, _ := dns.NewRR(OpenDNSName + " 0 IN A 203.0.113.9")
				m.Answer = append(m.Answer, rr)
			case dns.TypeAAAA:
				rr, _ := dns.NewRR(OpenDNSName + " 0 IN AAAA 2001:db8::9")
				m.Answer = append(m.Answer, rr)
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })
	<-started

	r := NewDNSResolver()
	r.Server = pc.LocalAddr().String()
	r.Timeout = 2 * time.Second

	addr, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "203.0.113.9", addr.String())

	r.IPv6 = true
	addr, err = r.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2001:db8::9", addr.String())

	r.Query = "other.example."
	_, err = r.Resolve(context.Background())
	require.Error(t, err)
}

func TestChainResolver(t *testing.T) {
	want := netip.MustParseAddr("192.0.2.1")
	chain := &ChainResolver{
		Resolvers: []interfaces.AddressResolver{
			staticResolver{err: errors.New("first down")},
			staticResolver{addr: want},
			staticResolver{err: errors.New("never reached")},
		},
	}

	addr, err := chain.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, addr)

	_, err = (&ChainResolver{}).Resolve(context.Background())
	require.Error(t, err)

	failing := &ChainResolver{Resolvers: []interfaces.AddressResolver{
		staticResolver{err: errors.New("a")},
		staticResolver{err: errors.New("b")},
	}}
	_, err = failing.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestLookup(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ok := Lookup(context.Background(), staticResolver{addr: netip.MustParseAddr("192.0.2.5")}, logger)
	require.False(t, ok.FellBack())
	require.Equal(t, "192.0.2.5", ok.Value.String())

	failed := Lookup(context.Background(), staticResolver{err: errors.New("offline")}, logger)
	require.True(t, failed.FellBack())
	require.Equal(t, "127.0.0.1", failed.Value.String())
}
