// Package resource describes the resource kinds served by the finance backend
// and how their payloads are shaped on the wire and in local storage.
package resource

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind names a resource collection, e.g. "transactions".
type Kind string

const (
	Transactions Kind = "transactions"
	Accounts     Kind = "accounts"
	Goals        Kind = "goals"
	Contacts     Kind = "contacts"
	Trips        Kind = "trips"
	Investments  Kind = "investments"
	SharedDebts  Kind = "shared-debts"
)

var ErrUnknownKind = errors.New("unknown resource kind")

// Spec holds everything that differs between resource kinds.
type Spec struct {
	Kind Kind
	// Path is the REST collection path segment.
	Path string
	// ListKey and ItemKey are the envelope fields used by the backend and the
	// local API ({"transactions": [...]}, {"transaction": {...}}).
	ListKey string
	ItemKey string
	// StorageKey is where the collection lives in local persistence.
	StorageKey string
}

var registry = map[Kind]Spec{
	Transactions: {Kind: Transactions, Path: "transactions", ListKey: "transactions", ItemKey: "transaction", StorageKey: "transactions"},
	Accounts:     {Kind: Accounts, Path: "accounts", ListKey: "accounts", ItemKey: "account", StorageKey: "accounts"},
	Goals:        {Kind: Goals, Path: "goals", ListKey: "goals", ItemKey: "goal", StorageKey: "goals"},
	Contacts:     {Kind: Contacts, Path: "contacts", ListKey: "contacts", ItemKey: "contact", StorageKey: "contacts"},
	// Trips belong to the shared-expenses data set.
	Trips:       {Kind: Trips, Path: "trips", ListKey: "trips", ItemKey: "trip", StorageKey: "shared-expenses:trips"},
	Investments: {Kind: Investments, Path: "investments", ListKey: "investments", ItemKey: "investment", StorageKey: "investments"},
	SharedDebts: {Kind: SharedDebts, Path: "shared-debts", ListKey: "sharedDebts", ItemKey: "sharedDebt", StorageKey: "shared-debts"},
}

// Lookup returns the spec registered for k.
func Lookup(k Kind) (Spec, error) {
	s, ok := registry[k]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return s, nil
}

// Kinds lists every registered kind.
func Kinds() []Kind {
	return []Kind{Transactions, Accounts, Goals, Contacts, Trips, Investments, SharedDebts}
}

// CollectionPath is the endpoint for list and create.
func (s Spec) CollectionPath() string {
	return "/" + s.Path
}

// ItemPath is the endpoint for read, update and delete of one resource.
func (s Spec) ItemPath(id string) string {
	return "/" + s.Path + "/" + id
}

// UnwrapList extracts a collection from either a bare array or an object
// keyed by ListKey.
func (s Spec) UnwrapList(data json.RawMessage) (json.RawMessage, error) {
	if isArray(data) {
		return data, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("unexpected %s list payload: %w", s.Kind, err)
	}
	if inner, ok := obj[s.ListKey]; ok {
		return inner, nil
	}
	if inner, ok := obj["data"]; ok && isArray(inner) {
		return inner, nil
	}
	return nil, fmt.Errorf("unexpected %s list payload: missing %q", s.Kind, s.ListKey)
}

// UnwrapItem extracts a single resource from either the bare object or an
// object keyed by ItemKey.
func (s Spec) UnwrapItem(data json.RawMessage) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("unexpected %s payload: %w", s.Kind, err)
	}
	if inner, ok := obj[s.ItemKey]; ok && !isNull(inner) {
		return inner, nil
	}
	return data, nil
}

// Unwrap dispatches to UnwrapItem when an id was requested, UnwrapList otherwise.
func (s Spec) Unwrap(data json.RawMessage, single bool) (json.RawMessage, error) {
	if single {
		return s.UnwrapItem(data)
	}
	return s.UnwrapList(data)
}

func isArray(data json.RawMessage) bool {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func isNull(data json.RawMessage) bool {
	return string(data) == "null"
}
