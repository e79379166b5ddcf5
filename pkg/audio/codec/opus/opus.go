// Package opus wraps libopus encoding and decoding for the fixed-parameter
// capture encoder and the negotiated-parameter playback decoder the audio
// pipeline controller swaps atomically.
package opus

/*
#cgo pkg-config: opus
#include <opus.h>
#include <stdlib.h>

static int opus_encoder_set_complexity_(OpusEncoder *enc, opus_int32 complexity) {
    return opus_encoder_ctl(enc, OPUS_SET_COMPLEXITY(complexity));
}
*/
import "C"
import (
	"fmt"
	"unsafe"
)

// ApplicationVoIP tunes the codec for speech, matching the capture encoder
// used by the original firmware.
const ApplicationVoIP = int(C.OPUS_APPLICATION_VOIP)

// Encoder wraps a libopus encoder at a fixed sample rate, channel count, and
// frame duration. The audio pipeline controller keeps one live at 16 kHz
// mono with 60 ms frames for the whole session.
type Encoder struct {
	sampleRate int
	frameMs    int
	cEnc       *C.OpusEncoder
}

// NewEncoder creates an Opus encoder for VoIP use at the given sample rate
// (mono) and frame duration in milliseconds.
func NewEncoder(sampleRate, frameMs int) (*Encoder, error) {
	var cErr C.int
	cEnc := C.opus_encoder_create(C.opus_int32(sampleRate), 1, C.int(ApplicationVoIP), &cErr)
	if cErr != C.OPUS_OK {
		return nil, fmt.Errorf("opus: encoder create failed: %s", C.GoString(C.opus_strerror(cErr)))
	}
	C.opus_encoder_set_complexity_(cEnc, 0)
	return &Encoder{sampleRate: sampleRate, frameMs: frameMs, cEnc: cEnc}, nil
}

// FrameSize returns the number of samples per channel in one frame at this
// encoder's configured rate and duration.
func (e *Encoder) FrameSize() int {
	return e.sampleRate * e.frameMs / 1000
}

// Encode encodes exactly FrameSize samples of mono PCM to an Opus packet.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if e.cEnc == nil {
		return nil, fmt.Errorf("opus: encoder is closed")
	}
	if len(pcm) != e.FrameSize() {
		return nil, fmt.Errorf("opus: encode: want %d samples, got %d", e.FrameSize(), len(pcm))
	}
	buf := make([]byte, 4000)
	n := C.opus_encode(e.cEnc,
		(*C.opus_int16)(unsafe.Pointer(&pcm[0])), C.int(e.FrameSize()),
		(*C.uchar)(unsafe.Pointer(&buf[0])), C.opus_int32(len(buf)))
	if n < 0 {
		return nil, fmt.Errorf("opus: encode failed: %s", C.GoString(C.opus_strerror(n)))
	}
	return buf[:n], nil
}

// Close releases the encoder's C resources.
func (e *Encoder) Close() {
	if e.cEnc != nil {
		C.opus_encoder_destroy(e.cEnc)
		e.cEnc = nil
	}
}

// Decoder wraps a libopus decoder at a negotiated sample rate and frame
// duration. SetDecodeSampleRate on the controller replaces the whole
// Decoder when parameters change, since libopus decoders are fixed-rate.
type Decoder struct {
	sampleRate int
	frameMs    int
	cDec       *C.OpusDecoder
}

// NewDecoder creates an Opus decoder (mono) at the given sample rate and
// frame duration in milliseconds.
func NewDecoder(sampleRate, frameMs int) (*Decoder, error) {
	var cErr C.int
	cDec := C.opus_decoder_create(C.opus_int32(sampleRate), 1, &cErr)
	if cErr != C.OPUS_OK {
		return nil, fmt.Errorf("opus: decoder create failed: %s", C.GoString(C.opus_strerror(cErr)))
	}
	return &Decoder{sampleRate: sampleRate, frameMs: frameMs, cDec: cDec}, nil
}

// SampleRate returns the decoder's configured sample rate.
func (d *Decoder) SampleRate() int { return d.sampleRate }

// FrameMs returns the decoder's configured frame duration in milliseconds.
func (d *Decoder) FrameMs() int { return d.frameMs }

// FrameSize returns the number of samples per channel in one frame.
func (d *Decoder) FrameSize() int {
	return d.sampleRate * d.frameMs / 1000
}

// Decode decodes one Opus packet to mono PCM samples.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	if d.cDec == nil {
		return nil, fmt.Errorf("opus: decoder is closed")
	}
	buf := make([]int16, d.FrameSize())
	var dataPtr *C.uchar
	var dataLen C.opus_int32
	if len(packet) > 0 {
		dataPtr = (*C.uchar)(unsafe.Pointer(&packet[0]))
		dataLen = C.opus_int32(len(packet))
	}
	n := C.opus_decode(d.cDec, dataPtr, dataLen,
		(*C.opus_int16)(unsafe.Pointer(&buf[0])), C.int(len(buf)), 0)
	if n < 0 {
		return nil, fmt.Errorf("opus: decode failed: %s", C.GoString(C.opus_strerror(n)))
	}
	return buf[:n], nil
}

// Close releases the decoder's C resources.
func (d *Decoder) Close() {
	if d.cDec != nil {
		C.opus_decoder_destroy(d.cDec)
		d.cDec = nil
	}
}
