// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// TestEncode_Chunk verifies the exact wire shape of a chunk frame.
func TestEncode_Chunk(t *testing.T) {
	data, err := Encode(&Chunk{Content: " there"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":" there","done":false}`, string(data))
}

// TestEncode_Terminal verifies the terminal frame carries an explicit null image.
func TestEncode_Terminal(t *testing.T) {
	data, err := Encode(&Terminal{CompanionName: "Mia"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"","done":true,"companionName":"Mia","imageRef":null}`, string(data))

	data, err = Encode(&Terminal{CompanionID: "mia-chen", CompanionName: "Mia", ImageRef: strPtr("/img/1.jpg")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"","done":true,"companionId":"mia-chen","companionName":"Mia","imageRef":"/img/1.jpg"}`, string(data))
}

func TestEncode_Invalid(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)

	var c *Chunk
	_, err = Encode(c)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	t.Run("chunk", func(t *testing.T) {
		f, err := Decode([]byte(`{"content":" you","done":false}`))
		require.NoError(t, err)
		chunk, ok := f.(*Chunk)
		require.True(t, ok)
		assert.Equal(t, " you", chunk.Content)
		assert.False(t, f.Done())
	})

	t.Run("terminal with image", func(t *testing.T) {
		f, err := Decode([]byte(`{"content":"","done":true,"companionName":"Mia","imageRef":"/a.jpg"}`))
		require.NoError(t, err)
		term, ok := f.(*Terminal)
		require.True(t, ok)
		assert.Equal(t, "Mia", term.CompanionName)
		assert.True(t, term.HasImage())
		assert.Equal(t, "/a.jpg", *term.ImageRef)
	})

	t.Run("terminal with null image", func(t *testing.T) {
		f, err := Decode([]byte(`{"content":"","done":true,"companionName":"Mia","imageRef":null}`))
		require.NoError(t, err)
		term := f.(*Terminal)
		assert.Nil(t, term.ImageRef)
		assert.False(t, term.HasImage())
	})

	malformed := map[string]string{
		"not json":         `{"content":`,
		"missing done":     `{"content":"hi"}`,
		"chunk no content": `{"done":false}`,
		"wrong type":       `{"content":5,"done":false}`,
	}
	for name, payload := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

// TestWriteFrame_ReaderRoundTrip verifies frames written by the server side
// decode to equal frames on the client side.
func TestWriteFrame_ReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		&Chunk{Content: "Hey"},
		&Chunk{Content: " \"quoted\"\nline"},
		&Terminal{CompanionID: "c1", CompanionName: "Mia", ImageRef: strPtr("/x.png")},
	}
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}
	assert.True(t, strings.HasPrefix(buf.String(), "data: {"))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n\n"))

	var got []Frame
	err := NewReader().Read(context.Background(), &buf, func(f Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, frames, got)
}

// TestTokenize_RoundTrip verifies that joining tokens reproduces the input.
func TestTokenize_RoundTrip(t *testing.T) {
	inputs := []string{
		"Hey",
		"Hey there, how are you?",
		"two  spaces",
		" leading space",
		"trailing space ",
		"line one\nline two",
		"emoji 😊 and ümlauts",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			tokens := Tokenize(in)
			require.NotEmpty(t, tokens)
			assert.Equal(t, in, strings.Join(tokens, ""))
			for i, tok := range tokens {
				if i > 0 {
					assert.True(t, strings.HasPrefix(tok, " "), "token %d should start with a space", i)
				}
			}
		})
	}
	assert.Equal(t, []string{"Hey", " there", " you"}, Tokenize("Hey there you"))
	assert.Nil(t, Tokenize(""))
}

func TestReader_SkipsNonDataLines(t *testing.T) {
	body := ": keepalive\n\nevent: message\nid: 7\ndata:{\"content\":\"a\",\"done\":false}\n\ndata: {\"content\":\"\",\"done\":true,\"companionName\":\"Mia\",\"imageRef\":null}\n\n"
	res, err := NewReader().ReadAll(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "a", res.Text)
	assert.Equal(t, 1, res.Chunks)
	require.NotNil(t, res.Terminal)
	assert.Equal(t, "Mia", res.Terminal.CompanionName)
}

func TestReader_StopsAtTerminal(t *testing.T) {
	body := "data: {\"content\":\"\",\"done\":true,\"companionName\":\"Mia\"}\n\ndata: {\"content\":\"late\",\"done\":false}\n\n"
	res, err := NewReader().ReadAll(context.Background(), strings.NewReader(body))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Chunks)
}

func TestReader_IncompleteStream(t *testing.T) {
	body := "data: {\"content\":\"Hey\",\"done\":false}\n\n"
	res, err := NewReader().ReadAll(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, ErrIncompleteStream)
	assert.Equal(t, "Hey", res.Text)
	assert.Nil(t, res.Terminal)
}

func TestReader_MalformedFrame(t *testing.T) {
	body := "data: {\"content\":\"Hey\",\"done\":false}\n\ndata: {oops}\n\n"
	_, err := NewReader().ReadAll(context.Background(), strings.NewReader(body))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	body := "data: {\"content\":\"Hey\",\"done\":false}\n\n"
	_, err := NewReader().ReadAll(ctx, strings.NewReader(body))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReader_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	body := "data: {\"content\":\"a\",\"done\":false}\n\ndata: {\"content\":\"b\",\"done\":false}\n\n"
	calls := 0
	err := NewReader().Read(context.Background(), strings.NewReader(body), func(Frame) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestReader_TransportError(t *testing.T) {
	_, err := NewReader().ReadAll(context.Background(), failingReader{})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
