package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/SluiooktueSvg/ia/internal/config"
)

const ttsEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// Binary frame layout used by the volcengine speech gateway: a 4-byte header
// (version/size, message type/flags, serialization/compression, reserved)
// followed by a big-endian payload size and the payload itself.
const (
	msgTypeFullClient  = 0b0001
	msgTypeFullServer  = 0b1001
	msgTypeAudioChunk  = 0b1011
	msgTypeError       = 0b1111
	flagLastPacket     = 0b0010
	flagNegativeSeq    = 0b0011
	serializationJSON  = 0b0001
	noCompression      = 0b0000
	protocolHeaderByte = 0b0001_0001 // version 1, header size 1 (4 bytes)
)

type volcengineTTSClient struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
}

func newVolcengineTTSClient(cfg config.SpeechConfig) *volcengineTTSClient {
	return &volcengineTTSClient{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		Language    string `json:"language,omitempty"`
		AudioParams struct {
			Format      string  `json:"format"`
			SampleRate  int     `json:"sample_rate"`
			SpeedRatio  float32 `json:"speed_ratio,omitempty"`
			VolumeRatio float32 `json:"volume_ratio,omitempty"`
		} `json:"audio_params"`
	} `json:"req_params"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// synthesize runs one request/response cycle against the TTS stream and
// returns the concatenated audio bytes.
func (c *volcengineTTSClient) synthesize(ctx context.Context, text string) ([]byte, error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", c.cfg.AppID)
	header.Set("X-Api-Access-Key", c.cfg.AccessToken)
	header.Set("X-Api-Resource-Id", "volc.service_type.10029")
	header.Set("X-Api-Connect-Id", uuid.NewString())

	conn, _, err := c.dialer.DialContext(ctx, ttsEndpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS gateway: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(c.buildRequest(text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, encodeFrame(msgTypeFullClient, payload)); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var audio bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}

		msgType, flags, payload, err := decodeFrame(data)
		if err != nil {
			return nil, err
		}

		switch msgType {
		case msgTypeError:
			return nil, fmt.Errorf("TTS error: %s", string(payload))

		case msgTypeAudioChunk:
			audio.Write(payload)
			if flags == flagLastPacket || flags == flagNegativeSeq {
				return finishAudio(&audio)
			}

		case msgTypeFullServer:
			var serverMsg ttsServerMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &serverMsg); err != nil {
					return nil, fmt.Errorf("failed to decode TTS payload: %w", err)
				}
				if serverMsg.Code != 0 && serverMsg.Code != 3000 {
					return nil, fmt.Errorf("TTS API error %d: %s", serverMsg.Code, serverMsg.Message)
				}
				if serverMsg.Data != "" {
					chunk, err := base64.StdEncoding.DecodeString(serverMsg.Data)
					if err != nil {
						return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
					}
					audio.Write(chunk)
				}
			}
			if flags == flagLastPacket || flags == flagNegativeSeq || serverMsg.Sequence < 0 {
				return finishAudio(&audio)
			}
		}
	}
}

func (c *volcengineTTSClient) buildRequest(text string) *ttsRequest {
	req := &ttsRequest{}
	req.User.UID = uuid.NewString()
	req.ReqParams.Speaker = strings.TrimSpace(c.cfg.TTSVoice)
	req.ReqParams.Text = text
	req.ReqParams.Language = strings.TrimSpace(c.cfg.TTSLanguage)
	req.ReqParams.AudioParams.Format = "mp3"
	req.ReqParams.AudioParams.SampleRate = 24000
	if c.cfg.TTSSpeed > 0 && c.cfg.TTSSpeed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = c.cfg.TTSSpeed
	}
	if c.cfg.TTSVolume > 0 && c.cfg.TTSVolume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = c.cfg.TTSVolume
	}
	return req
}

func finishAudio(audio *bytes.Buffer) ([]byte, error) {
	if audio.Len() == 0 {
		return nil, fmt.Errorf("TTS audio is empty")
	}
	return audio.Bytes(), nil
}

func encodeFrame(msgType uint8, payload []byte) []byte {
	frame := make([]byte, 0, 8+len(payload))
	frame = append(frame,
		protocolHeaderByte,
		msgType<<4,
		serializationJSON<<4|noCompression,
		0x00,
	)
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	return append(frame, payload...)
}

func decodeFrame(data []byte) (msgType, flags uint8, payload []byte, err error) {
	if len(data) < 4 {
		return 0, 0, nil, fmt.Errorf("TTS frame too short: %d bytes", len(data))
	}

	headerSize := int(data[0]&0x0f) * 4
	msgType = data[1] >> 4
	flags = data[1] & 0x0f

	offset := headerSize
	// Error frames carry a 4-byte error code before the payload size; data
	// frames may carry a 4-byte sequence number depending on the flags.
	if msgType == msgTypeError || flags == 0b0001 || flags == flagNegativeSeq {
		offset += 4
	}

	if len(data) < offset+4 {
		return 0, 0, nil, fmt.Errorf("TTS frame truncated before payload size")
	}
	size := binary.BigEndian.Uint32(data[offset : offset+4])
	offset += 4

	if len(data) < offset+int(size) {
		return 0, 0, nil, fmt.Errorf("TTS frame truncated: want %d payload bytes, have %d", size, len(data)-offset)
	}
	return msgType, flags, data[offset : offset+int(size)], nil
}
