package discord

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/0xChin/ricardo/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const frameChannelBuffer = 256

// captureFormat is the fixed PCM format of decoded Discord voice.
var captureFormat = audio.Format{
	SampleRate: opusSampleRate,
	Channels:   opusChannels,
	BitDepth:   opusBitDepth,
}

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. It demuxes incoming Opus packets by SSRC,
// decodes them to PCM frames attributed to the speaking user, and surfaces
// Discord speaking updates as [audio.Event] values.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc          *discordgo.VoiceConnection
	session     *discordgo.Session
	channelName string

	mu       sync.RWMutex
	ssrcUser map[uint32]string // SSRC -> userID
	names    map[string]string // userID -> display name

	frames chan audio.Frame

	speakingCb func(audio.Event)
	cbMu       sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC is called during Disconnect to tear down the voice
	// connection. Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel.
// It registers the speaking-update handler and starts the receive loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, channelName string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		channelName:  channelName,
		ssrcUser:     make(map[uint32]string),
		names:        make(map[string]string),
		frames:       make(chan audio.Frame, frameChannelBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	vc.AddHandler(c.handleSpeakingUpdate)

	go c.recvLoop()

	return c, nil
}

// Frames returns the demuxed per-speaker PCM frame channel.
func (c *Connection) Frames() <-chan audio.Frame {
	return c.frames
}

// Format reports the fixed capture format (48 kHz stereo 16-bit).
func (c *Connection) Format() audio.Format {
	return captureFormat
}

// ChannelName returns the human-readable name of the joined voice channel.
func (c *Connection) ChannelName() string {
	return c.channelName
}

// OnSpeaking registers cb as the callback for speaker activity events.
// Only one callback may be registered; subsequent calls replace the previous one.
func (c *Connection) OnSpeaking(cb func(audio.Event)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.speakingCb = cb
}

// Disconnect tears down the voice connection and stops the receive loop.
// Safe to call more than once; subsequent calls return nil.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
		close(c.frames)
	})
	return err
}

// recvLoop reads Opus packets from the Discord voice connection, decodes
// them per SSRC, and delivers PCM frames attributed to the mapped user.
func (c *Connection) recvLoop() {
	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("discord: create opus decoder", "ssrc", pkt.SSRC, "err", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("discord: opus decode error", "ssrc", pkt.SSRC, "err", err)
				continue
			}

			frame := audio.Frame{
				SpeakerID: c.speakerID(pkt.SSRC),
				PCM:       pcm,
				Timestamp: time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
			}

			select {
			case c.frames <- frame:
			case <-c.done:
				return
			default:
				// Channel full: drop the frame rather than stall the UDP reader.
			}
		}
	}
}

// handleSpeakingUpdate maps SSRC to user ID and emits speaking start/stop
// events. Discord sends Speaking=true when a user begins transmitting and
// Speaking=false when transmission stops; the stops are raw and may repeat.
func (c *Connection) handleSpeakingUpdate(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}

	c.mu.Lock()
	c.ssrcUser[uint32(su.SSRC)] = su.UserID
	name, cached := c.names[su.UserID]
	c.mu.Unlock()

	if !cached {
		name = c.resolveName(su.UserID)
		c.mu.Lock()
		c.names[su.UserID] = name
		c.mu.Unlock()
	}

	typ := audio.EventSpeakingStop
	if su.Speaking {
		typ = audio.EventSpeakingStart
	}
	c.emitEvent(audio.Event{
		Type:        typ,
		SpeakerID:   su.UserID,
		DisplayName: name,
	})
}

// speakerID resolves an SSRC to a user ID, falling back to the SSRC digits
// when no speaking update has mapped it yet.
func (c *Connection) speakerID(ssrc uint32) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if userID, ok := c.ssrcUser[ssrc]; ok {
		return userID
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// resolveName looks up a display name for userID, preferring gateway state
// over a REST round-trip.
func (c *Connection) resolveName(userID string) string {
	if c.session == nil {
		return userID
	}
	if c.session.State != nil {
		if u, err := c.session.State.Member(c.vc.GuildID, userID); err == nil && u != nil {
			if u.Nick != "" {
				return u.Nick
			}
			if u.User != nil && u.User.Username != "" {
				return u.User.Username
			}
		}
	}
	if u, err := c.session.User(userID); err == nil && u != nil && u.Username != "" {
		return u.Username
	}
	return userID
}

// emitEvent safely invokes the registered speaking callback.
func (c *Connection) emitEvent(ev audio.Event) {
	c.cbMu.Lock()
	cb := c.speakingCb
	c.cbMu.Unlock()
	if cb != nil {
		go cb(ev)
	}
}
