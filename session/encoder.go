package session

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
)

const (
	contextFormatVersionCurrent = 1
)

// Encode serializes c: a version byte, length-prefixed identifiers, big-endian
// timestamps, then the claims as length-prefixed JSON.
func Encode(c *Context) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(contextFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"sessionID", c.SessionID},
		{"userID", c.UserID},
		{"tenantID", c.TenantID},
		{"email", c.Email},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	if err := binary.Write(&buf, binary.BigEndian, c.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.UpdatedAt); err != nil {
		return nil, err
	}

	claims, err := json.Marshal(c.Claims)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(claims))); err != nil {
		return nil, err
	}
	buf.Write(claims)

	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Context, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != contextFormatVersionCurrent {
		return nil, errors.New("invalid session context version")
	}

	c := &Context{}
	for _, dst := range []*string{&c.SessionID, &c.UserID, &c.TenantID, &c.Email} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, err
		}
		*dst = string(b)
	}

	if err := binary.Read(reader, binary.BigEndian, &c.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &c.UpdatedAt); err != nil {
		return nil, err
	}

	var claimsLen uint32
	if err := binary.Read(reader, binary.BigEndian, &claimsLen); err != nil {
		return nil, err
	}
	if int64(claimsLen) > int64(reader.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	claims := make([]byte, claimsLen)
	if _, err := io.ReadFull(reader, claims); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(claims, &c.Claims); err != nil {
		return nil, err
	}
	return c, nil
}
