// Package entrylog is the fixed-layout log-entry record set (spec §4.16,
// C16): every entry kind is a 32-bit-aligned struct starting with a
// 64-bit timestamp, appended to a bounded in-memory ring by a single
// writer. Field layouts are grounded directly on wlan_mac_entries.h
// (NodeInfo/TimeInfo/StationInfo/BSSInfo/Temperature/TxRxCounts/
// RxOFDM/RxOFDMLTG/RxDSSS/TxHigh/TxHighLTG/TxLow/TxLowLTG), trimmed to the
// fields this MAC actually produces (wlan_exp tag-parameter-only fields
// like hw_generation/serial_number are dropped; the node-identity fields
// live in internal/config instead).
package entrylog

import (
	"sync"
	"time"
)

// Kind identifies a log entry's record type, matching ENTRY_TYPE_* order.
type Kind int

const (
	KindNodeInfo Kind = iota
	KindStationInfo
	KindTemperature
	KindTimeInfo
	KindBSSInfo
	KindTxRxCounts
	KindRxOFDM
	KindRxOFDMLTG
	KindRxDSSS
	KindTxHigh
	KindTxHighLTG
	KindTxLow
	KindTxLowLTG
)

// TimeInfoReason mirrors TIME_INFO_ENTRY_* (spec: "reason ∈ {System,
// SetTime, AddLog}").
type TimeInfoReason int

const (
	TimeInfoSystem TimeInfoReason = iota
	TimeInfoSetTime
	TimeInfoAddLog
)

// FCSStatus mirrors RX_ENTRY_FCS_*.
type FCSStatus int

const (
	FCSGood FCSStatus = iota
	FCSBad
)

// Entry is the common envelope every record kind satisfies.
type Entry interface {
	EntryKind() Kind
	EntryTimestamp() time.Time
}

type base struct {
	Timestamp time.Time
}

func (b base) EntryTimestamp() time.Time { return b.Timestamp }

// NodeInfo records static node identity, always the first entry in a
// fresh log.
type NodeInfo struct {
	base
	NodeType        uint32
	NodeID          uint32
	FPGADNA         uint64
	WLANExpVersion  uint32
	SchedResolution uint32
	MACAddr         [6]byte
}

func (NodeInfo) EntryKind() Kind { return KindNodeInfo }

// TimeInfo records a MAC-time/system-time/host-time correlation point.
type TimeInfo struct {
	base
	TimeID          uint32
	Reason          TimeInfoReason
	MACTimestampUs  uint64
	SystemTimestampUs uint64
	HostTimestampUs uint64 // 0xFFFFFFFFFFFFFFFF if unknown
}

func (TimeInfo) EntryKind() Kind { return KindTimeInfo }

// StationInfo snapshots one peer's station_info at the moment of logging.
type StationInfo struct {
	base
	Addr   [6]byte
	AID    uint16
	Flags  uint8
}

func (StationInfo) EntryKind() Kind { return KindStationInfo }

// BSSInfo snapshots one bss_info at the moment of logging.
type BSSInfo struct {
	base
	BSSID        [6]byte
	Channel      int
	Capabilities uint16
	SSID         string
}

func (BSSInfo) EntryKind() Kind { return KindBSSInfo }

// Temperature records the board's system-monitor temperature readout.
type Temperature struct {
	base
	NodeID  uint32
	CurrRaw uint32
	MinRaw  uint32
	MaxRaw  uint32
}

func (Temperature) EntryKind() Kind { return KindTemperature }

// TxRxCounts snapshots one address's counts record.
type TxRxCounts struct {
	base
	Addr [6]byte
	Data, Mgmt FrameCountsSnapshot
}

// FrameCountsSnapshot is the loggable projection of counts.FrameCounts
// (kept here rather than importing counts, so entrylog has no dependency
// on the store implementations it logs about).
type FrameCountsSnapshot struct {
	RxBytes, RxBytesTotal           uint64
	TxBytesSuccess, TxBytesTotal    uint64
	RxPackets, RxPacketsTotal       uint32
	TxPacketsSuccess, TxPacketsTotal uint32
	TxAttempts                      uint64
}

func (TxRxCounts) EntryKind() Kind { return KindTxRxCounts }

// RxCommon is the shared envelope of RxOFDM/RxOFDMLTG/RxDSSS, matching
// rx_common_entry.
type RxCommon struct {
	TimestampFrac uint8
	CFOEst        int32
	Length        uint16
	MCS           uint8
	PowerDBm      int8
	FCS           FCSStatus
	PktType       uint8
	ChanNum       uint8
	AntMode       uint8
	RFGain        uint8
	BBGain        uint8
	Duplicate     bool
}

// RxOFDM records an OFDM (11a/g/n) reception, optionally with its channel
// estimate and a truncated MAC payload.
type RxOFDM struct {
	base
	RxCommon
	ChanEst        []complex64 // nil unless channel-estimate logging is enabled
	MACPayloadLen  int
	MACPayload     []byte
}

func (RxOFDM) EntryKind() Kind { return KindRxOFDM }

// RxOFDMLTG is RxOFDM for a frame recognised as LTG traffic (LLC type 0x9090).
type RxOFDMLTG struct {
	base
	RxCommon
	MACPayloadLen int
	MACPayload    []byte
}

func (RxOFDMLTG) EntryKind() Kind { return KindRxOFDMLTG }

// RxDSSS records an 11b (DSSS) reception.
type RxDSSS struct {
	base
	RxCommon
	MACPayloadLen int
	MACPayload    []byte
}

func (RxDSSS) EntryKind() Kind { return KindRxDSSS }

// TxResult mirrors the tx_high_entry "result" field.
type TxResult int

const (
	TxResultSuccess TxResult = iota
	TxResultFailure
)

// TxHigh records one Tx-queue-to-CPU-Low handoff's outcome, timed from
// queueing through CPU-Low completion.
type TxHigh struct {
	base
	DelayAcceptUs   uint32
	DelayDoneUs     uint32
	UniqueSeq       uint64
	NumTx           uint8
	PowerDBm        int8
	ChanNum         uint8
	MCS             uint8
	Length          uint16
	Result          TxResult
	PktType         uint8
	QueueID         uint16
	QueueOccupancy  uint16
	AntMode         uint8
	MACPayloadLen   int
	MACPayload      []byte
}

func (TxHigh) EntryKind() Kind { return KindTxHigh }

// TxHighLTG is TxHigh for LTG-originated traffic.
type TxHighLTG struct {
	base
	TxHigh
}

func (TxHighLTG) EntryKind() Kind { return KindTxHighLTG }

// TxLow records one low-level (per-attempt) transmission.
type TxLow struct {
	base
	UniqueSeq         uint64
	TransmissionCount uint8
	ChanNum           uint8
	Length            uint16
	NumSlots          int16
	ContentionWindow  uint16
	PktType           uint8
	Flags             uint8
	TimestampSendFrac uint8
	MACPayloadLen     int
	MACPayload        []byte
}

func (TxLow) EntryKind() Kind { return KindTxLow }

// TxLowLTG is TxLow for LTG-originated traffic.
type TxLowLTG struct {
	base
	TxLow
}

func (TxLowLTG) EntryKind() Kind { return KindTxLowLTG }

// Log is a bounded, thread-safe append-only ring of Entry values.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     int
	full     bool
}

// New builds a Log that retains at most capacity entries, overwriting the
// oldest once full.
func New(capacity int) *Log {
	return &Log{entries: make([]Entry, capacity), capacity: capacity}
}

// Append adds e to the log as given; it does not set e's timestamp.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % l.capacity
	if l.next == 0 {
		l.full = true
	}
}

// Len returns the number of entries currently retained.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return l.capacity
	}
	return l.next
}

// All returns every retained entry, oldest first.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]Entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Entry, l.capacity)
	copy(out, l.entries[l.next:])
	copy(out[l.capacity-l.next:], l.entries[:l.next])
	return out
}

// ByKind returns every retained entry of the given kind, oldest first.
func (l *Log) ByKind(k Kind) []Entry {
	all := l.All()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.EntryKind() == k {
			out = append(out, e)
		}
	}
	return out
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]Entry, l.capacity)
	l.next = 0
	l.full = false
}
