package wallet

import "fmt"

// Mode is the connector's durable intent. Connecting is a flag on State, not a mode.
type Mode int

const (
	ModeIdle Mode = iota
	ModeConnected
	// ModeManuallyDisconnected blocks every automatic reconnect until Connect is called.
	ModeManuallyDisconnected
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeConnected:
		return "connected"
	case ModeManuallyDisconnected:
		return "manually_disconnected"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "idle", "":
		return ModeIdle, nil
	case "connected":
		return ModeConnected, nil
	case "manually_disconnected":
		return ModeManuallyDisconnected, nil
	}
	return ModeIdle, fmt.Errorf("unknown wallet mode %q", s)
}

// State is the snapshot published to callers.
type State struct {
	Address    string
	Balance    string // native balance, 4 decimals
	ChainID    uint64
	Connected  bool
	Connecting bool
	Err        string
	Mode       Mode
}

// machine is everything reduce needs. gen is bumped by every connect attempt and every
// transition that must invalidate attempts already in flight.
type machine struct {
	state  State
	gen    uint64
	target uint64
}

type event interface{ isEvent() }

type (
	restored           struct{ mode Mode }
	connectStarted     struct{}
	autoConnectStarted struct{}
	connectSucceeded   struct {
		gen     uint64
		address string
		balance string
		chainID uint64
	}
	connectFailed struct {
		gen uint64
		err string
	}
	balanceUpdated struct {
		gen     uint64
		balance string
	}
	disconnected    struct{}
	accountsEmptied struct{}
	chainChanged    struct{ chainID uint64 }
)

func (restored) isEvent()           {}
func (connectStarted) isEvent()     {}
func (autoConnectStarted) isEvent() {}
func (connectSucceeded) isEvent()   {}
func (connectFailed) isEvent()      {}
func (balanceUpdated) isEvent()     {}
func (disconnected) isEvent()       {}
func (accountsEmptied) isEvent()    {}
func (chainChanged) isEvent()       {}

// reduce is the single transition function for explicit calls and provider events.
// It reports whether the event was applied.
func reduce(m machine, ev event) (machine, bool) {
	manual := m.state.Mode == ModeManuallyDisconnected

	switch e := ev.(type) {
	case restored:
		if e.mode != ModeManuallyDisconnected {
			return m, false
		}
		m.gen++
		m.state = State{Mode: ModeManuallyDisconnected}
		return m, true

	case connectStarted, autoConnectStarted:
		// only an explicit connect may leave a manual disconnect
		if _, auto := ev.(autoConnectStarted); auto && manual {
			return m, false
		}
		m.gen++
		m.state.Mode = ModeIdle
		m.state.Connecting = true
		m.state.Err = ""
		return m, true

	case connectSucceeded:
		if e.gen != m.gen || manual {
			return m, false
		}
		m.state = State{
			Address:   e.address,
			Balance:   e.balance,
			ChainID:   e.chainID,
			Connected: true,
			Mode:      ModeConnected,
		}
		return m, true

	case connectFailed:
		if e.gen != m.gen || manual {
			return m, false
		}
		m.state = State{Err: e.err, Mode: ModeIdle}
		return m, true

	case balanceUpdated:
		if e.gen != m.gen || !m.state.Connected {
			return m, false
		}
		m.state.Balance = e.balance
		return m, true

	case disconnected:
		m.gen++
		m.state = State{Mode: ModeManuallyDisconnected}
		return m, true

	case accountsEmptied:
		if manual {
			return m, false
		}
		m.gen++
		m.state = State{Mode: ModeManuallyDisconnected}
		return m, true

	case chainChanged:
		if manual {
			return m, false
		}
		// our own switch to the target while connecting
		if m.state.Connecting && e.chainID == m.target {
			return m, false
		}
		if m.state.Connected && e.chainID == m.target && m.state.ChainID == m.target {
			return m, false
		}
		m.gen++
		m.state = State{Mode: ModeIdle}
		return m, true
	}
	return m, false
}
