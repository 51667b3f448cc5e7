// Package handshake drives the Protocol's initial negotiation (spec.md
// §4.8): magic/version check, encoding and encryption selection,
// protocol-variant selection (with fallback to basic), slave-name
// agreement, and optional authentication.
//
// The teacher's HAL has no negotiation phase of its own, so this package
// is modeled in its straight-line, early-return error style instead —
// applyConfig's panics (core/loop.go) become plain fatal-error returns
// here, since a library must never panic on attacker-controlled remote
// input. crypto/subtle.ConstantTimeCompare resolves the password-compare
// timing channel the same way a security-conscious host would.
package handshake

import (
	"context"
	"crypto/subtle"
	"strconv"
	"strings"
	"time"

	"github.com/jangala-dev/opdi-go/cipher"
	"github.com/jangala-dev/opdi-go/codec"
	"github.com/jangala-dev/opdi-go/frame"
	"github.com/jangala-dev/opdi-go/protoerr"
)

// Version is the Protocol version this driver speaks (spec.md §6.1).
const Version = "0.1"

// Magic is the handshake's leading token (spec.md §6.1).
const Magic = "OPDI"

// Flag bits carried in the handshake frames (spec.md §6.1).
type Flags uint8

const (
	AuthRequiredFlag Flags = 1 << iota
	EncryptRequiredFlag
	EncryptForbiddenFlag
)

// Config supplies everything the host configures ahead of a session
// (spec.md §6.2's setup/set_encoding/set_languages/set_username/
// set_password).
type Config struct {
	SlaveName string
	Encoding  string

	// Ciphers this slave can offer, keyed by the name negotiated on the
	// wire. Empty means no encryption support at all.
	Ciphers map[string]cipher.Named

	// Protocols this slave understands, in preference order. "BP" (basic)
	// must always be present; spec.md §4.8 falls back to it.
	SupportedProtocols []string

	Username string
	Password string

	EncryptRequired bool
	AuthTimeout     time.Duration
}

// Result is what the handshake hands off to the session loop.
type Result struct {
	Cipher   cipher.Named // nil if no encryption was negotiated
	Protocol string       // "BP" or "EP" (or another offered variant)
}

// Run drives the slave side of the handshake to completion (spec.md
// §4.8). When a cipher is negotiated, Run arms both r and w with it right
// after the slave's reply has been sent, so the caller has nothing
// further to enable.
func Run(ctx context.Context, r *frame.Reader, w *frame.Writer, cfg Config) (Result, error) {
	flags, encs, err := expectMagic(ctx, r)
	if err != nil {
		return Result{}, err
	}

	chosen := chooseCipher(cfg, flags, encs)
	if cfg.EncryptRequired && chosen == nil {
		return Result{}, protoerr.New(protoerr.ProtocolError, "no mutually supported encryption")
	}

	if err := sendReply(w, cfg, chosen); err != nil {
		return Result{}, err
	}
	if chosen != nil {
		w.EnableCipher(chosen)
		r.EnableCipher(chosen)
	}

	variant, err := selectProtocol(ctx, r, cfg)
	if err != nil {
		return Result{}, err
	}

	if err := w.WriteMessage(0, cfg.SlaveName); err != nil {
		return Result{}, err
	}

	if cfg.Password != "" {
		if err := authenticate(ctx, r, w, cfg); err != nil {
			return Result{}, err
		}
	}

	return Result{Cipher: chosen, Protocol: variant}, nil
}

func expectMagic(ctx context.Context, r *frame.Reader) (Flags, []string, error) {
	msg, err := r.ReadMessage(ctx)
	if err != nil {
		return 0, nil, err
	}
	if msg.Channel != 0 {
		return 0, nil, protoerr.New(protoerr.ProtocolError, "handshake must open on the control channel")
	}
	parts, err := codec.Split(msg.Payload, 4, false)
	if err != nil || len(parts) != 4 || parts[0] != Magic {
		return 0, nil, protoerr.New(protoerr.ProtocolError, "bad handshake magic")
	}
	flagsVal, err := codec.ParseUint8(parts[2])
	if err != nil {
		return 0, nil, protoerr.New(protoerr.ProtocolError, "bad handshake flags")
	}
	var encs []string
	if parts[3] != "" {
		encs = strings.Split(parts[3], ",")
	}
	return Flags(flagsVal), encs, nil
}

func chooseCipher(cfg Config, masterFlags Flags, offered []string) cipher.Named {
	if masterFlags&EncryptForbiddenFlag != 0 {
		return nil
	}
	for _, name := range offered {
		if c, ok := cfg.Ciphers[name]; ok {
			return c
		}
	}
	return nil
}

func sendReply(w *frame.Writer, cfg Config, chosen cipher.Named) error {
	chosenName := ""
	if chosen != nil {
		chosenName = chosen.Name()
	}
	var myFlags Flags
	if cfg.Password != "" {
		myFlags |= AuthRequiredFlag
	}
	if cfg.EncryptRequired {
		myFlags |= EncryptRequiredFlag
	}
	parts := []string{Magic, Version, cfg.Encoding, chosenName, strconv.FormatUint(uint64(myFlags), 10), strings.Join(cfg.SupportedProtocols, ",")}
	payload, err := codec.Join(parts, 0)
	if err != nil {
		return err
	}
	return w.WriteMessage(0, payload)
}

func selectProtocol(ctx context.Context, r *frame.Reader, cfg Config) (string, error) {
	msg, err := r.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	if msg.Channel != 0 {
		return "", protoerr.New(protoerr.ProtocolError, "protocol-select must be on the control channel")
	}
	requested := msg.Payload
	for _, supported := range cfg.SupportedProtocols {
		if supported == requested {
			return requested, nil
		}
	}
	return "BP", nil
}

func authenticate(ctx context.Context, r *frame.Reader, w *frame.Writer, cfg Config) error {
	actx := ctx
	var cancel context.CancelFunc
	if cfg.AuthTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, cfg.AuthTimeout)
		defer cancel()
	}
	msg, err := r.ReadMessage(actx)
	if err != nil {
		return err
	}
	parts, err := codec.Split(msg.Payload, 3, false)
	if err != nil || len(parts) != 3 || parts[0] != "Auth" {
		_ = w.WriteMessage(0, "NOK:AUTH_FAILED")
		return protoerr.New(protoerr.AuthFailed, "malformed auth message")
	}
	userOK := strings.EqualFold(parts[1], cfg.Username)
	passOK := subtle.ConstantTimeCompare([]byte(parts[2]), []byte(cfg.Password)) == 1
	if !userOK || !passOK {
		_ = w.WriteMessage(0, "NOK:AUTH_FAILED")
		return protoerr.New(protoerr.AuthFailed, "bad credentials")
	}
	return nil
}
