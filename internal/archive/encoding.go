package archive

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Encoding 记录脚本文本的字节编码，写回时据此还原 BOM。
type Encoding int

const (
	// EncodingUTF8 无 BOM，按原始字节透传。
	EncodingUTF8 Encoding = iota
	EncodingUTF8BOM
	EncodingUTF16LE
	EncodingUTF16BE
)

func (e Encoding) String() string {
	switch e {
	case EncodingUTF8BOM:
		return "utf-8-bom"
	case EncodingUTF16LE:
		return "utf-16le"
	case EncodingUTF16BE:
		return "utf-16be"
	default:
		return "utf-8"
	}
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Text 是解码后的条目内容。
type Text struct {
	Content  string
	Encoding Encoding
}

// DetectEncoding 根据 BOM 判断编码，无 BOM 时视为 UTF-8。
func DetectEncoding(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return EncodingUTF16BE
	default:
		return EncodingUTF8
	}
}

// DecodeText 去掉 BOM 并转换为 Go 字符串。
// 带 BOM 的内容经解码器转换，非法字节序列会被替换为 U+FFFD，写回后不再逐字节一致；
// 无 BOM 的内容原样保留。
func DecodeText(data []byte) (Text, error) {
	enc := DetectEncoding(data)
	codec := codecFor(enc)
	if codec == nil {
		return Text{Content: string(data), Encoding: enc}, nil
	}
	decoded, err := codec.NewDecoder().Bytes(data)
	if err != nil {
		return Text{}, fmt.Errorf("decode %s: %w", enc, err)
	}
	return Text{Content: string(decoded), Encoding: enc}, nil
}

// EncodeText 按 t.Encoding 编码，带 BOM 的编码会重新写出 BOM。
func EncodeText(t Text) ([]byte, error) {
	codec := codecFor(t.Encoding)
	if codec == nil {
		return []byte(t.Content), nil
	}
	encoded, err := codec.NewEncoder().Bytes([]byte(t.Content))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t.Encoding, err)
	}
	return encoded, nil
}

func codecFor(enc Encoding) encoding.Encoding {
	switch enc {
	case EncodingUTF8BOM:
		return unicode.UTF8BOM
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return nil
	}
}
