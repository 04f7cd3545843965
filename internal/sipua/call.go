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

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/softphone/internal/media"
	"github.com/sebas/softphone/internal/sdp"
	"github.com/sebas/softphone/internal/session"
)

// ErrNotAnswered is returned for media operations before the call is up.
var ErrNotAnswered = errors.New("call is not answered")

// SIPError is a final non-2xx response to the INVITE.
type SIPError struct {
	Code   int
	Reason string
}

func (e *SIPError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Reason)
}

// MediaTimeoutError reports how long inbound RTP has been missing.
type MediaTimeoutError struct {
	Idle time.Duration
}

func (e *MediaTimeoutError) Error() string {
	return fmt.Sprintf("no media for %s", e.Idle.Round(time.Millisecond))
}

type callState int

const (
	callDialing callState = iota
	callAnswered
	callEnded
)

// call is one outbound dialog and its media.
type call struct {
	ua       *UA
	id       string
	localTag string
	listener session.Listener
	invite   *sip.Request

	port int
	conn net.PacketConn

	hangup     chan struct{}
	hangupOnce sync.Once
	releaseOne sync.Once

	mu            sync.Mutex
	state         callState
	cseq          uint32
	remoteTag     string
	remoteContact sip.Uri
	stream        *media.Stream
	muted         bool
	rec           session.RecordingListener
}

var _ session.Call = (*call)(nil)

// run sends the INVITE and processes responses until the call is answered
// or fails.
func (c *call) run(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, c.ua.cfg.DialTimeout)
	defer cancel()

	tx, err := c.ua.client.TransactionRequest(dialCtx, c.invite)
	if err != nil {
		c.fail(&SIPError{Code: 503, Reason: "Transaction failed"}, err)
		return
	}
	defer tx.Terminate()

	slog.Info("[SIP] INVITE sent", "call_id", c.id, "target", c.invite.Recipient.String())

	ringing := false
	for {
		select {
		case <-c.hangup:
			if err := c.sendCANCEL(); err != nil {
				slog.Warn("[SIP] CANCEL failed", "call_id", c.id, "error", err)
			}
			c.waitAfterCancel(tx)
			c.release()
			return

		case <-dialCtx.Done():
			if err := c.sendCANCEL(); err != nil {
				slog.Warn("[SIP] CANCEL failed", "call_id", c.id, "error", err)
			}
			c.fail(&SIPError{Code: 408, Reason: "Request Timeout"}, nil)
			return

		case resp := <-tx.Responses():
			if resp == nil {
				c.fail(&SIPError{Code: 408, Reason: "No Response"}, nil)
				return
			}
			code := int(resp.StatusCode)
			slog.Debug("[SIP] Response received", "call_id", c.id, "status", code, "reason", resp.Reason)

			switch {
			case code == 100:
			case code < 200:
				if !ringing {
					ringing = true
					slog.Info("[SIP] Ringing", "call_id", c.id, "status", code)
					c.listener.Ringing()
				}
			case code < 300:
				c.handle2xx(resp)
				return
			default:
				slog.Info("[SIP] Call rejected", "call_id", c.id, "status", code, "reason", resp.Reason)
				c.fail(&SIPError{Code: code, Reason: resp.Reason}, nil)
				return
			}

		case <-tx.Done():
			if err := tx.Err(); err != nil {
				c.fail(&SIPError{Code: 408, Reason: "Request Timeout"}, err)
			} else {
				c.fail(&SIPError{Code: 500, Reason: "Transaction terminated unexpectedly"}, nil)
			}
			return
		}
	}
}

// waitAfterCancel absorbs the final response to a cancelled INVITE. A 2xx
// that crossed the CANCEL is acknowledged and hung up.
func (c *call) waitAfterCancel(tx sip.ClientTransaction) {
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	for {
		select {
		case resp := <-tx.Responses():
			if resp == nil || resp.StatusCode < 200 {
				if resp == nil {
					return
				}
				continue
			}
			if resp.StatusCode < 300 {
				c.setDialog(resp)
				if err := c.sendACK(resp); err != nil {
					slog.Warn("[SIP] ACK failed", "call_id", c.id, "error", err)
				}
				if err := c.sendBYE(); err != nil {
					slog.Warn("[SIP] BYE failed", "call_id", c.id, "error", err)
				}
			}
			return
		case <-tx.Done():
			return
		case <-timer.C:
			return
		}
	}
}

// handle2xx negotiates media, acknowledges the answer and reports connected.
func (c *call) handle2xx(resp *sip.Response) {
	c.setDialog(resp)
	if err := c.sendACK(resp); err != nil {
		// Still treated as answered; the 200 OK stands without our ACK.
		slog.Error("[SIP] Failed to send ACK", "call_id", c.id, "error", err)
	}

	ans, err := sdp.ParseAnswer(resp.Body(), media.VoiceCodecs)
	if err == nil {
		err = c.startMedia(ans)
	}
	if err != nil {
		slog.Error("[SIP] Media negotiation failed", "call_id", c.id, "error", err)
		if byeErr := c.sendBYE(); byeErr != nil {
			slog.Warn("[SIP] BYE failed", "call_id", c.id, "error", byeErr)
		}
		c.fail(&SIPError{Code: 488, Reason: "Not Acceptable Here"}, err)
		return
	}

	c.mu.Lock()
	hungUp := false
	select {
	case <-c.hangup:
		hungUp = true
		c.state = callEnded
	default:
		c.state = callAnswered
	}
	c.mu.Unlock()

	if hungUp {
		// Hung up while the answer was being processed.
		if err := c.sendBYE(); err != nil {
			slog.Warn("[SIP] BYE failed", "call_id", c.id, "error", err)
		}
		c.release()
		return
	}

	slog.Info("[SIP] Call answered",
		"call_id", c.id,
		"remote_media", net.JoinHostPort(ans.Addr, strconv.Itoa(ans.Port)),
		"codec", ans.Codec.Name,
		"dtmf_pt", ans.DTMF,
	)
	c.listener.Connected()
}

func (c *call) startMedia(ans *sdp.Answer) error {
	remote, err := ans.RemoteAddr()
	if err != nil {
		return fmt.Errorf("resolve remote media: %w", err)
	}
	stream, err := media.NewStream(media.StreamConfig{
		Conn:              c.conn,
		Remote:            remote,
		Codec:             ans.Codec,
		DTMFPayloadType:   ans.DTMF,
		InactivityTimeout: c.ua.cfg.MediaTimeout,
		OnInactive: func(idle time.Duration) {
			c.listener.Reconnecting(&MediaTimeoutError{Idle: idle})
		},
		OnResumed: c.listener.Reconnected,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	stream.SetMuted(c.muted)
	c.stream = stream
	c.mu.Unlock()

	stream.Start()
	return nil
}

func (c *call) setDialog(resp *sip.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			c.remoteTag = tag
		}
	}
	c.remoteContact = c.invite.Recipient
	if contact := resp.Contact(); contact != nil {
		c.remoteContact = contact.Address
	}
}

// sendACK sends the ACK for a 2xx response. It is a new request sent to
// the remote target, outside the INVITE transaction.
func (c *call) sendACK(resp *sip.Response) error {
	c.mu.Lock()
	target := c.remoteContact
	c.mu.Unlock()

	ack := sip.NewRequest(sip.ACK, target)
	sip.CopyHeaders("From", c.invite, ack)
	sip.CopyHeaders("Call-ID", c.invite, ack)
	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{DisplayName: to.DisplayName, Address: to.Address, Params: to.Params})
	}
	if cseq := c.invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	dest := resp.Source()
	if dest == "" {
		dest = uriDestination(target)
	}
	ack.SetDestination(dest)

	done := make(chan error, 1)
	go func() {
		done <- c.ua.client.WriteRequest(ack)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write ACK: %w", err)
		}
	case <-time.After(5 * time.Second):
		return errors.New("ACK timeout")
	}
	slog.Debug("[SIP] ACK sent", "call_id", c.id, "dest", dest)
	return nil
}

// sendCANCEL cancels the pending INVITE.
func (c *call) sendCANCEL() error {
	cancelReq := sip.NewRequest(sip.CANCEL, c.invite.Recipient)
	sip.CopyHeaders("Via", c.invite, cancelReq)
	sip.CopyHeaders("From", c.invite, cancelReq)
	sip.CopyHeaders("To", c.invite, cancelReq)
	sip.CopyHeaders("Call-ID", c.invite, cancelReq)
	if cseq := c.invite.CSeq(); cseq != nil {
		cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)
	cancelReq.SetDestination(c.invite.Destination())

	return c.transact(cancelReq, "CANCEL")
}

// sendBYE ends the answered dialog.
func (c *call) sendBYE() error {
	c.mu.Lock()
	target := c.remoteContact
	remoteTag := c.remoteTag
	c.cseq++
	seq := c.cseq
	c.mu.Unlock()

	bye := sip.NewRequest(sip.BYE, target)
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)
	sip.CopyHeaders("From", c.invite, bye)

	toParams := sip.NewParams()
	if remoteTag != "" {
		toParams.Add("tag", remoteTag)
	}
	toHdr := &sip.ToHeader{Params: toParams}
	if to := c.invite.To(); to != nil {
		toHdr.Address = to.Address
	}
	bye.AppendHeader(toHdr)

	callIDHdr := sip.CallIDHeader(c.id)
	bye.AppendHeader(&callIDHdr)
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: sip.BYE})
	bye.SetDestination(uriDestination(target))

	slog.Info("[SIP] Sending BYE", "call_id", c.id, "request_uri", target.String())
	return c.transact(bye, "BYE")
}

func (c *call) transact(req *sip.Request, method string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := c.ua.client.TransactionRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	defer tx.Terminate()

	select {
	case resp := <-tx.Responses():
		if resp != nil {
			slog.Debug("[SIP] Response", "call_id", c.id, "method", method, "status", int(resp.StatusCode))
		}
	case <-tx.Done():
	case <-ctx.Done():
		slog.Warn("[SIP] No response", "call_id", c.id, "method", method)
	}
	return nil
}

func uriDestination(u sip.Uri) string {
	port := u.Port
	if port == 0 {
		port = 5060
	}
	return net.JoinHostPort(u.Host, strconv.Itoa(port))
}

// fail reports a connect failure and releases the call.
func (c *call) fail(sipErr *SIPError, cause error) {
	c.mu.Lock()
	alreadyEnded := c.state == callEnded
	c.state = callEnded
	c.mu.Unlock()

	c.release()
	if alreadyEnded {
		return
	}
	select {
	case <-c.hangup:
		return
	default:
	}
	if cause != nil {
		slog.Debug("[SIP] Call setup error", "call_id", c.id, "error", cause)
	}
	c.listener.ConnectFailure(sipErr)
}

// remoteHangup handles a BYE from the far end.
func (c *call) remoteHangup() {
	c.mu.Lock()
	if c.state != callAnswered {
		c.mu.Unlock()
		return
	}
	c.state = callEnded
	c.mu.Unlock()

	slog.Info("[SIP] Remote hangup", "call_id", c.id)
	c.release()
	c.listener.Disconnected(nil)
}

// release stops media and frees the call's port. Safe to call repeatedly.
func (c *call) release() {
	c.releaseOne.Do(func() {
		c.mu.Lock()
		stream := c.stream
		rec := c.rec
		c.rec = nil
		c.mu.Unlock()

		if stream != nil {
			stream.SetTap(nil)
			_ = stream.Close()
		} else {
			_ = c.conn.Close()
		}
		if rec != nil {
			rec.RecordingStopped()
		}
		c.ua.ports.Release(c.port)
		c.ua.forget(c)
	})
}

// Disconnect cancels a pending call or hangs up an answered one. Further
// listener callbacks are suppressed.
func (c *call) Disconnect() {
	c.hangupOnce.Do(func() { close(c.hangup) })

	c.mu.Lock()
	answered := c.state == callAnswered
	if answered {
		c.state = callEnded
	}
	c.mu.Unlock()

	if answered {
		c.release()
		go func() {
			if err := c.sendBYE(); err != nil {
				slog.Warn("[SIP] BYE failed", "call_id", c.id, "error", err)
			}
		}()
	}
}

// Mute sends silence instead of local audio while set.
func (c *call) Mute(muted bool) {
	c.mu.Lock()
	c.muted = muted
	stream := c.stream
	c.mu.Unlock()
	if stream != nil {
		stream.SetMuted(muted)
	}
}

// SendDigits queues RFC 4733 events; errors are logged.
func (c *call) SendDigits(digits string) {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return
	}
	go func() {
		if err := stream.SendDigits(digits); err != nil {
			slog.Warn("[SIP] DTMF failed", "call_id", c.id, "digits", digits, "error", err)
		}
	}()
}

// StartRecording delivers decoded inbound audio to l until StopRecording
// or the end of the call.
func (c *call) StartRecording(l session.RecordingListener) error {
	c.mu.Lock()
	if c.state != callAnswered || c.stream == nil {
		c.mu.Unlock()
		return ErrNotAnswered
	}
	if c.rec != nil {
		c.mu.Unlock()
		return errors.New("already recording")
	}
	c.rec = l
	stream := c.stream
	c.mu.Unlock()

	stream.SetTap(l.BufferAvailable)
	l.RecordingStarted()
	return nil
}

// StopRecording removes the audio tap.
func (c *call) StopRecording() {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	stream := c.stream
	c.mu.Unlock()
	if rec == nil {
		return
	}
	if stream != nil {
		stream.SetTap(nil)
	}
	rec.RecordingStopped()
}
