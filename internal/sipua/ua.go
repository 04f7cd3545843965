// Package sipua is the softphone's voice transport: a SIP user agent that
// places calls through a provider proxy and carries their audio over RTP.
package sipua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sebas/softphone/internal/media"
	"github.com/sebas/softphone/internal/sdp"
	"github.com/sebas/softphone/internal/session"
)

// ErrIncomingUnsupported is returned by Accept; the UA only places calls.
var ErrIncomingUnsupported = errors.New("incoming calls are not supported")

// Config holds user agent settings.
type Config struct {
	BindAddr      string
	Port          int
	AdvertiseAddr string
	Proxy         string // host[:port] receiving outbound INVITEs
	Domain        string // host part of the From URI
	UserAgent     string
	DialTimeout   time.Duration
	MediaTimeout  time.Duration
	RTPPortMin    int
	RTPPortMax    int
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 5060
	}
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = "127.0.0.1"
	}
	if c.Domain == "" {
		c.Domain = c.AdvertiseAddr
	}
	if c.UserAgent == "" {
		c.UserAgent = "softphone"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 60 * time.Second
	}
	if c.RTPPortMin == 0 {
		c.RTPPortMin = 10000
	}
	if c.RTPPortMax == 0 {
		c.RTPPortMax = c.RTPPortMin + 100
	}
	return c
}

// UA is a SIP user agent implementing session.Transport.
type UA struct {
	cfg    Config
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client
	ports  *media.PortPool

	mu    sync.RWMutex
	calls map[string]*call // by Call-ID
}

var _ session.Transport = (*UA)(nil)

// New creates a user agent. Call Start to listen for in-dialog requests.
func New(cfg Config) (*UA, error) {
	cfg = cfg.withDefaults()
	if cfg.Proxy == "" {
		return nil, errors.New("sip proxy address is required")
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.UserAgent))
	if err != nil {
		return nil, fmt.Errorf("failed to create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.AdvertiseAddr))
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	u := &UA{
		cfg:    cfg,
		ua:     ua,
		srv:    srv,
		client: client,
		ports:  media.NewPortPool(cfg.RTPPortMin, cfg.RTPPortMax),
		calls:  make(map[string]*call),
	}

	srv.OnRequest(sip.INVITE, u.handleINVITE)
	srv.OnRequest(sip.BYE, u.handleBYE)
	srv.OnRequest(sip.ACK, u.handleACK)
	srv.OnRequest(sip.CANCEL, u.handleCANCEL)
	srv.OnRequest(sip.OPTIONS, u.handleOPTIONS)

	slog.Info("[SIP] User agent ready",
		"proxy", cfg.Proxy,
		"advertise", cfg.AdvertiseAddr,
		"rtp_ports", fmt.Sprintf("%d-%d", cfg.RTPPortMin, cfg.RTPPortMax),
	)
	return u, nil
}

// Start listens for SIP over UDP until ctx is cancelled.
func (u *UA) Start(ctx context.Context) error {
	listenAddr := net.JoinHostPort(u.cfg.BindAddr, strconv.Itoa(u.cfg.Port))
	slog.Info("[SIP] Listening", "addr", listenAddr)
	if err := u.srv.ListenAndServe(ctx, "udp", listenAddr); err != nil && ctx.Err() == nil {
		return fmt.Errorf("listen %s: %w", listenAddr, err)
	}
	return nil
}

// Close hangs up every live call and shuts the user agent down.
func (u *UA) Close() error {
	u.mu.RLock()
	calls := make([]*call, 0, len(u.calls))
	for _, c := range u.calls {
		calls = append(calls, c)
	}
	u.mu.RUnlock()

	for _, c := range calls {
		c.Disconnect()
	}
	return u.ua.Close()
}

// ActiveCalls returns the number of calls being set up or in progress.
func (u *UA) ActiveCalls() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.calls)
}

// Connect sends an INVITE and returns the call handle immediately.
// Progress is reported to l from the call's own goroutine.
func (u *UA) Connect(ctx context.Context, token string, params session.ConnectParams, l session.Listener) (session.Call, error) {
	if params.To == "" {
		return nil, errors.New("destination is required")
	}

	port, err := u.ports.Allocate()
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", net.JoinHostPort(u.cfg.BindAddr, strconv.Itoa(port)))
	if err != nil {
		u.ports.Release(port)
		return nil, fmt.Errorf("open RTP socket: %w", err)
	}

	offer, err := sdp.BuildOffer(sdp.Offer{
		Addr:   u.cfg.AdvertiseAddr,
		Port:   port,
		Codecs: media.VoiceCodecs,
		DTMF:   media.CodecTelephoneEvent.PayloadType,
	})
	if err != nil {
		conn.Close()
		u.ports.Release(port)
		return nil, fmt.Errorf("build SDP offer: %w", err)
	}

	c := &call{
		ua:       u,
		id:       generateCallID(),
		localTag: generateTag(),
		listener: l,
		port:     port,
		conn:     conn,
		hangup:   make(chan struct{}),
		cseq:     1,
	}
	invite, err := u.buildINVITE(c, token, params, offer)
	if err != nil {
		c.release()
		return nil, err
	}
	c.invite = invite

	u.mu.Lock()
	u.calls[c.id] = c
	u.mu.Unlock()

	go c.run(context.WithoutCancel(ctx))

	slog.Info("[SIP] Dialing",
		"call_id", c.id,
		"to", params.To,
		"from", params.From,
		"rtp_port", port,
	)
	return c, nil
}

// Accept is part of session.Transport. Incoming calls are rejected at the
// SIP layer with 486, so there is never an invite to accept.
func (u *UA) Accept(context.Context, session.Invite, session.Listener) (session.Call, error) {
	return nil, ErrIncomingUnsupported
}

func (u *UA) proxyURI(user string) (sip.Uri, error) {
	host, port, err := splitHostPort(u.cfg.Proxy)
	if err != nil {
		return sip.Uri{}, fmt.Errorf("invalid proxy %q: %w", u.cfg.Proxy, err)
	}
	return sip.Uri{Scheme: "sip", User: user, Host: host, Port: port}, nil
}

// buildINVITE constructs the outbound INVITE request.
func (u *UA) buildINVITE(c *call, token string, params session.ConnectParams, offer []byte) (*sip.Request, error) {
	requestURI, err := u.proxyURI(params.To)
	if err != nil {
		return nil, err
	}

	invite := sip.NewRequest(sip.INVITE, requestURI)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromParams := sip.NewParams()
	fromParams.Add("tag", c.localTag)
	invite.AppendHeader(&sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: params.From, Host: u.cfg.Domain},
		Params:  fromParams,
	})

	invite.AppendHeader(&sip.ToHeader{
		Address: sip.Uri{Scheme: "sip", User: params.To, Host: requestURI.Host, Port: requestURI.Port},
		Params:  sip.NewParams(),
	})

	callIDHdr := sip.CallIDHeader(c.id)
	invite.AppendHeader(&callIDHdr)

	invite.AppendHeader(&sip.CSeqHeader{SeqNo: c.cseq, MethodName: sip.INVITE})

	invite.AppendHeader(&sip.ContactHeader{
		Address: sip.Uri{Scheme: "sip", User: contactUser(params.From), Host: u.cfg.AdvertiseAddr, Port: u.cfg.Port},
	})

	if token != "" {
		invite.AppendHeader(sip.NewHeader("Authorization", "Bearer "+token))
	}

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(offer)
	invite.SetDestination(net.JoinHostPort(requestURI.Host, strconv.Itoa(requestURI.Port)))

	return invite, nil
}

func (u *UA) lookup(req *sip.Request) *call {
	if req.CallID() == nil {
		return nil
	}
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.calls[string(*req.CallID())]
}

func (u *UA) forget(c *call) {
	u.mu.Lock()
	delete(u.calls, c.id)
	u.mu.Unlock()
}

func (u *UA) handleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	from := ""
	if h := req.From(); h != nil {
		from = h.Address.String()
	}
	slog.Info("[SIP] Rejecting incoming call", "from", from)
	respond(req, tx, 486, "Busy Here")
}

func (u *UA) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	c := u.lookup(req)
	if c == nil {
		respond(req, tx, 481, "Call/Transaction Does Not Exist")
		return
	}
	respond(req, tx, 200, "OK")
	c.remoteHangup()
}

// handleACK absorbs stray ACKs; the UA never sends a 2xx to an INVITE.
func (u *UA) handleACK(*sip.Request, sip.ServerTransaction) {}

func (u *UA) handleCANCEL(req *sip.Request, tx sip.ServerTransaction) {
	respond(req, tx, 481, "Call/Transaction Does Not Exist")
}

func (u *UA) handleOPTIONS(req *sip.Request, tx sip.ServerTransaction) {
	respond(req, tx, 200, "OK")
}

func respond(req *sip.Request, tx sip.ServerTransaction, code int, reason string) {
	res := sip.NewResponseFromRequest(req, sip.StatusCode(code), reason, nil)
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIP] Failed to respond", "method", req.Method.String(), "status", code, "error", err)
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		if addr == "" {
			return "", 0, errors.New("empty address")
		}
		return addr, 5060, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func contactUser(from string) string {
	if from == "" {
		return "softphone"
	}
	return from
}

// generateCallID generates a unique Call-ID.
func generateCallID() string {
	return uuid.New().String()
}

// generateTag generates a unique tag for From/To headers.
func generateTag() string {
	return uuid.New().String()[:8]
}
