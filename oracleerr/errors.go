// Package oracleerr defines the closed set of failure kinds surfaced by the
// attestation engine. Callers branch on Kind instead of message text.
package oracleerr

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// Kind enumerates every failure category the engine reports.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnknownMethod
	KindIdenticalParties
	KindInvalidQuoteID
	KindInvalidSymbol
	KindUndefinedReferencePrice
	KindCorruptedPrice
	KindSingleSourceSymbol
	KindUPnlTolerance
	KindLossTolerance
	KindPriceTolerance
	KindSignatureNotVerified
	KindInvalidParams
	KindUnknownChain
	KindUpstream
	KindSeedMismatch
)

// Class groups kinds by the stage that rejects the request.
type Class int

const (
	ClassInternal Class = iota
	// ClassInput covers requests rejected before any I/O.
	ClassInput
	// ClassIntegrity covers suspect chain or market data.
	ClassIntegrity
	// ClassAgreement covers seed values this node cannot reproduce.
	ClassAgreement
	// ClassUpstream covers chain RPC and market-data transport failures.
	ClassUpstream
)

type kindInfo struct {
	code    string
	message string
	class   Class
}

var kinds = map[Kind]kindInfo{
	KindUnknown:                 {"internal", "Internal error", ClassInternal},
	KindUnknownMethod:           {"unknown_method", "Unknown method", ClassInput},
	KindIdenticalParties:        {"identical_parties", "Identical Parties Error", ClassInput},
	KindInvalidQuoteID:          {"invalid_quote_id", "Invalid quoteId", ClassIntegrity},
	KindInvalidSymbol:           {"invalid_symbol", "Invalid symbol", ClassIntegrity},
	KindUndefinedReferencePrice: {"undefined_reference_price", "Undefined Reference Price", ClassIntegrity},
	KindCorruptedPrice:          {"corrupted_price", "Corrupted Price", ClassIntegrity},
	KindSingleSourceSymbol:      {"single_source_symbol", "Single Source Symbol", ClassIntegrity},
	KindUPnlTolerance:           {"upnl_tolerance", "uPnl Tolerance Error", ClassAgreement},
	KindLossTolerance:           {"loss_tolerance", "Loss Tolerance Error", ClassAgreement},
	KindPriceTolerance:          {"price_tolerance", "Price Tolerance Error", ClassAgreement},
	KindSignatureNotVerified:    {"signature_not_verified", "Signature Not Verified", ClassAgreement},
	KindInvalidParams:           {"invalid_params", "Invalid params", ClassInput},
	KindUnknownChain:            {"unknown_chain", "Unknown chain", ClassInput},
	KindUpstream:                {"upstream", "Upstream failure", ClassUpstream},
	KindSeedMismatch:            {"seed_mismatch", "Seed Mismatch", ClassAgreement},
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindUnknown]
}

// String returns the wire message of the kind, e.g. "Corrupted Price".
func (k Kind) String() string { return k.info().message }

// Code returns a stable snake_case identifier suitable for metrics labels.
func (k Kind) Code() string { return k.info().code }

// Class reports which pipeline stage produces the kind.
func (k Kind) Class() Class { return k.info().class }

// Error is the concrete error carried through the engine.
type Error struct {
	Kind   Kind
	Detail map[string]string
	Err    error
}

// New builds an error of the given kind. kv is a flat list of detail
// key/value pairs.
func New(kind Kind, kv ...string) *Error {
	e := &Error{Kind: kind}
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.With(kv[i], kv[i+1])
	}
	return e
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, kv ...string) *Error {
	e := New(kind, kv...)
	e.Err = err
	return e
}

// With records a detail entry and returns e.
func (e *Error) With(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if len(e.Detail) > 0 {
		keys := make([]string, 0, len(e.Detail))
		for k := range e.Detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(e.Detail[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrCorruptedPrice)
// works regardless of attached detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// MarshalJSON renders the error the way the HTTP surface reports it.
func (e *Error) MarshalJSON() ([]byte, error) {
	payload := struct {
		Kind    string            `json:"kind"`
		Message string            `json:"message"`
		Detail  map[string]string `json:"detail,omitempty"`
	}{Kind: e.Kind.Code(), Message: e.Kind.String(), Detail: e.Detail}
	return json.Marshal(payload)
}

// KindOf extracts the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns err as an *Error, wrapping foreign errors as KindUnknown.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindUnknown, err)
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownMethod           = &Error{Kind: KindUnknownMethod}
	ErrIdenticalParties        = &Error{Kind: KindIdenticalParties}
	ErrInvalidQuoteID          = &Error{Kind: KindInvalidQuoteID}
	ErrInvalidSymbol           = &Error{Kind: KindInvalidSymbol}
	ErrUndefinedReferencePrice = &Error{Kind: KindUndefinedReferencePrice}
	ErrCorruptedPrice          = &Error{Kind: KindCorruptedPrice}
	ErrSingleSourceSymbol      = &Error{Kind: KindSingleSourceSymbol}
	ErrUPnlTolerance           = &Error{Kind: KindUPnlTolerance}
	ErrLossTolerance           = &Error{Kind: KindLossTolerance}
	ErrPriceTolerance          = &Error{Kind: KindPriceTolerance}
	ErrSignatureNotVerified    = &Error{Kind: KindSignatureNotVerified}
	ErrInvalidParams           = &Error{Kind: KindInvalidParams}
	ErrUnknownChain            = &Error{Kind: KindUnknownChain}
	ErrUpstream                = &Error{Kind: KindUpstream}
	ErrSeedMismatch            = &Error{Kind: KindSeedMismatch}
)
