package cloud

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/driftdb/driftdb"
)

// DefaultKafkaEnvPrefix is the default prefix for log-shipping environment
// variables: <PREFIX>_BROKER_LIST.
const DefaultKafkaEnvPrefix = "DRIFTDB_CLOUD_KAFKA_LOG"

const envSuffixBrokerList = "_BROKER_LIST"

// DebugContext is one debug logging context of the log-shipping client.
type DebugContext string

// The recognized debug contexts.
const (
	DebugAll      DebugContext = "all"
	DebugGeneric  DebugContext = "generic"
	DebugBroker   DebugContext = "broker"
	DebugTopic    DebugContext = "topic"
	DebugMetadata DebugContext = "metadata"
	DebugQueue    DebugContext = "queue"
	DebugMsg      DebugContext = "msg"
	DebugProtocol DebugContext = "protocol"
	DebugCgrp     DebugContext = "cgrp"
	DebugSecurity DebugContext = "security"
	DebugFetch    DebugContext = "fetch"
	DebugFeature  DebugContext = "feature"
)

var knownDebugContexts = map[DebugContext]struct{}{
	DebugAll: {}, DebugGeneric: {}, DebugBroker: {}, DebugTopic: {},
	DebugMetadata: {}, DebugQueue: {}, DebugMsg: {}, DebugProtocol: {},
	DebugCgrp: {}, DebugSecurity: {}, DebugFetch: {}, DebugFeature: {},
}

// ParseDebugContexts splits a comma-separated debug-context list and maps
// each token to its context. An unknown token yields a recoverable error
// carrying the offending token; the process is never aborted.
func ParseDebugContexts(s string) ([]DebugContext, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	contexts := make([]DebugContext, 0, len(parts))
	for _, part := range parts {
		ctx := DebugContext(part)
		if _, ok := knownDebugContexts[ctx]; !ok {
			return nil, driftdb.NewErrorf(driftdb.ErrUnrecognizedDebugContext,
				"unrecognized debug context %q", part)
		}
		contexts = append(contexts, ctx)
	}
	return contexts, nil
}

// KafkaLogOptions describes the external log-shipping backend: broker
// addresses, debug verbosity contexts, and the protocol-negotiation toggle.
//
// Like BucketOptions it is not internally synchronized; a single instance
// may be shared by pointer across configurations once it is no longer
// mutated.
type KafkaLogOptions struct {
	brokerList        string
	debug             map[DebugContext]struct{}
	apiVersionRequest bool
}

// NewKafkaLogOptions creates a descriptor with no brokers, no debug
// contexts, and API version negotiation enabled.
func NewKafkaLogOptions() *KafkaLogOptions {
	return &KafkaLogOptions{
		debug:             make(map[DebugContext]struct{}),
		apiVersionRequest: true,
	}
}

// DefaultKafkaLogOptionsFromEnv creates a descriptor seeded from the
// environment under DefaultKafkaEnvPrefix.
func DefaultKafkaLogOptionsFromEnv() *KafkaLogOptions {
	return NewKafkaLogOptions().ReadFromEnv(DefaultKafkaEnvPrefix)
}

// SetBrokerList sets the comma-separated broker endpoint list.
func (o *KafkaLogOptions) SetBrokerList(brokers string) error {
	if err := checkField("broker_list", brokers); err != nil {
		return err
	}
	o.brokerList = brokers
	return nil
}

// BrokerList returns the comma-separated broker endpoint list.
func (o *KafkaLogOptions) BrokerList() string { return o.brokerList }

// Brokers returns the broker list split into individual endpoints, with
// whitespace trimmed and empty entries dropped.
func (o *KafkaLogOptions) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(o.brokerList, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// SetDebug replaces the debug context set.
func (o *KafkaLogOptions) SetDebug(contexts ...DebugContext) {
	o.debug = make(map[DebugContext]struct{}, len(contexts))
	for _, ctx := range contexts {
		o.debug[ctx] = struct{}{}
	}
}

// Debug returns the debug contexts in canonical (sorted) order.
func (o *KafkaLogOptions) Debug() []DebugContext {
	contexts := make([]DebugContext, 0, len(o.debug))
	for ctx := range o.debug {
		contexts = append(contexts, ctx)
	}
	sort.Slice(contexts, func(i, j int) bool { return contexts[i] < contexts[j] })
	return contexts
}

// DebugString returns the canonical comma-joined serialization of the debug
// context set. The output is deterministic for a fixed set and re-parses to
// the same set.
func (o *KafkaLogOptions) DebugString() string {
	contexts := o.Debug()
	parts := make([]string, len(contexts))
	for i, ctx := range contexts {
		parts[i] = string(ctx)
	}
	return strings.Join(parts, ",")
}

// SetAPIVersionRequest toggles broker API version negotiation.
func (o *KafkaLogOptions) SetAPIVersionRequest(enabled bool) {
	o.apiVersionRequest = enabled
}

// APIVersionRequest reports whether API version negotiation is requested.
func (o *KafkaLogOptions) APIVersionRequest() bool { return o.apiVersionRequest }

// Clone returns a deep copy. The clone and the receiver never share mutable
// state.
func (o *KafkaLogOptions) Clone() *KafkaLogOptions {
	clone := &KafkaLogOptions{
		brokerList:        o.brokerList,
		debug:             make(map[DebugContext]struct{}, len(o.debug)),
		apiVersionRequest: o.apiVersionRequest,
	}
	for ctx := range o.debug {
		clone.debug[ctx] = struct{}{}
	}
	return clone
}

// ReadFromEnv returns a copy of the descriptor with the broker list overlaid
// from <prefix>_BROKER_LIST when that variable is set. The receiver is never
// mutated.
func (o *KafkaLogOptions) ReadFromEnv(prefix string) *KafkaLogOptions {
	result := o.Clone()
	if v, ok := os.LookupEnv(prefix + envSuffixBrokerList); ok {
		result.brokerList = v
	}
	return result
}

// IsValid reports whether the descriptor can be used in an FS
// configuration: a non-empty, well-formed broker list. Pure query.
func (o *KafkaLogOptions) IsValid() bool {
	brokers := o.Brokers()
	if len(brokers) == 0 {
		return false
	}
	for _, b := range brokers {
		if !validBroker(b) {
			return false
		}
	}
	return true
}

// validBroker accepts "host" or "host:port" with a numeric port.
func validBroker(b string) bool {
	host := b
	if i := strings.LastIndexByte(b, ':'); i >= 0 {
		host = b[:i]
		port, err := strconv.Atoi(b[i+1:])
		if err != nil || port < 1 || port > 65535 {
			return false
		}
	}
	return host != "" && !strings.ContainsAny(host, " \t")
}
