package node

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/frame"
	"github.com/skycoin/datalink/pkg/link"
	"github.com/skycoin/datalink/pkg/store"
)

// ConfigVersion is the version written by DefaultConfig.
const ConfigVersion = "1.0"

// Config defines configuration parameters for Node.
type Config struct {
	Version string `json:"version"`

	Link struct {
		Addr         string     `json:"addr"`
		Framing      frame.Mode `json:"framing"`
		DataLen      int        `json:"data_len"`
		PollInterval Duration   `json:"poll_interval"`
	} `json:"link"`

	// Message is sent on every reset: Alphabet units of repeated letters,
	// or Text split into units when set.
	Message struct {
		Alphabet int    `json:"alphabet"`
		Text     string `json:"text,omitempty"`
	} `json:"message"`

	ARQ ARQConfig `json:"arq"`

	Store struct {
		Type     string `json:"type"`
		Location string `json:"location"`
	} `json:"store"`

	Interfaces struct {
		APIAddress string `json:"api_address"`
	} `json:"interfaces"`

	LogLevel        string   `json:"log_level"`
	ShutdownTimeout Duration `json:"shutdown_timeout"` // time value, examples: 10s, 1m, etc
}

// ARQConfig is the JSON form of arq.Config.
type ARQConfig struct {
	Mode            arq.Mode `json:"mode"`
	Window          int      `json:"window"`
	SeqModulus      int      `json:"seq_modulus"`
	SeqBase         int      `json:"seq_base"`
	FrameDelay      int      `json:"frame_delay"`
	ProbSendErr     float64  `json:"prob_send_err"`
	ProbAckErr      float64  `json:"prob_ack_err"`
	TransmitDelay   Duration `json:"transmit_delay"`
	AckTimeout      Duration `json:"ack_timeout"`
	AckFlushDelay   Duration `json:"ack_flush_delay"`
	ReackDuplicates bool     `json:"reack_duplicates"`
	Seed            int64    `json:"seed"`
}

// NewARQConfig converts c to its JSON form.
func NewARQConfig(c arq.Config) ARQConfig {
	return ARQConfig{
		Mode:            c.Mode,
		Window:          c.Window,
		SeqModulus:      c.SeqModulus,
		SeqBase:         c.SeqBase,
		FrameDelay:      c.FrameDelay,
		ProbSendErr:     c.ProbSendErr,
		ProbAckErr:      c.ProbAckErr,
		TransmitDelay:   Duration(c.TransmitDelay),
		AckTimeout:      Duration(c.AckTimeout),
		AckFlushDelay:   Duration(c.AckFlushDelay),
		ReackDuplicates: c.ReackDuplicates,
		Seed:            c.Seed,
	}
}

// Config returns the arq.Config described by c.
func (c ARQConfig) Config() arq.Config {
	return arq.Config{
		Mode:            c.Mode,
		Window:          c.Window,
		SeqModulus:      c.SeqModulus,
		SeqBase:         c.SeqBase,
		FrameDelay:      c.FrameDelay,
		ProbSendErr:     c.ProbSendErr,
		ProbAckErr:      c.ProbAckErr,
		TransmitDelay:   time.Duration(c.TransmitDelay),
		AckTimeout:      time.Duration(c.AckTimeout),
		AckFlushDelay:   time.Duration(c.AckFlushDelay),
		ReackDuplicates: c.ReackDuplicates,
		Seed:            c.Seed,
	}
}

// DefaultConfig returns the configuration of the lab board: 26 letter
// units of 16 bytes over the sliding-window protocol.
func DefaultConfig() *Config {
	c := &Config{Version: ConfigVersion}
	c.Link.Addr = ":6653"
	c.Link.Framing = frame.Tagged
	c.Link.DataLen = 16
	c.Link.PollInterval = Duration(link.DefaultPollInterval)
	c.Message.Alphabet = 26
	c.ARQ = NewARQConfig(arq.DefaultConfig())
	c.Store.Type = store.MemoryType
	c.Store.Location = "./datalink-runs.db"
	c.Interfaces.APIAddress = "localhost:6654"
	c.LogLevel = "info"
	c.ShutdownTimeout = Duration(10 * time.Second)
	return c
}

// ReadConfig decodes a Config from r on top of DefaultConfig.
func ReadConfig(r io.Reader) (*Config, error) {
	conf := DefaultConfig()
	if err := json.NewDecoder(r).Decode(conf); err != nil {
		return nil, err
	}
	return conf, conf.Validate()
}

// ReadConfigFile reads the Config at path.
func ReadConfigFile(path string) (*Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }() //nolint:errcheck
	return ReadConfig(f)
}

// Validate checks that the configuration can be run.
func (c *Config) Validate() error {
	if err := c.Layout().Validate(); err != nil {
		return err
	}
	if err := c.ARQ.Config().Validate(); err != nil {
		return err
	}
	if c.Message.Text == "" && c.Message.Alphabet < 1 {
		return errors.New("message is empty")
	}
	return nil
}

// Layout returns the frame layout both peers use.
func (c *Config) Layout() frame.Layout {
	return frame.Layout{DataLen: c.Link.DataLen, Mode: c.Link.Framing}
}

// LinkConfig returns the endpoint configuration.
func (c *Config) LinkConfig() link.Config {
	return link.Config{Layout: c.Layout(), PollInterval: time.Duration(c.Link.PollInterval)}
}

// BuildMessage returns the message sent on every reset.
func (c *Config) BuildMessage() (arq.Message, error) {
	if c.Message.Text != "" {
		return arq.FromText([]byte(c.Message.Text), c.Link.DataLen)
	}
	if c.Message.Alphabet < 1 {
		return arq.Message{}, arq.ErrEmptyMessage
	}
	return arq.Alphabet(c.Message.Alphabet, c.Link.DataLen), nil
}

// RunStore opens the configured run store.
func (c *Config) RunStore() (store.RunStore, error) {
	return store.New(c.Store.Type, c.Store.Location)
}

// Duration wraps around time.Duration to allow parsing from and to JSON
type Duration time.Duration

// MarshalJSON implements json marshaling
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements unmarshal from json
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return errors.New("invalid duration")
	}
}
