package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/any-hub/asset-cache/internal/asset"
)

// 磁盘文件格式：首字节为格式标记，其后为 zstd 压缩流。
const (
	formatAsset byte = 1
	formatRaw   byte = 2
)

// EncodeAll/DecodeAll 均可并发调用，整包共享一组编解码器即可。
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

var errFormatMismatch = errors.New("unexpected cache file format")

func encodeAsset(a *asset.Asset) ([]byte, error) {
	if a == nil {
		return nil, errors.New("nil asset")
	}
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(a); err != nil {
		return nil, fmt.Errorf("encode asset: %w", err)
	}
	out := make([]byte, 1, body.Len()/2+16)
	out[0] = formatAsset
	return zstdEncoder.EncodeAll(body.Bytes(), out), nil
}

func decodeAsset(data []byte) (*asset.Asset, error) {
	body, err := unwrapFormat(data, formatAsset)
	if err != nil {
		return nil, err
	}
	var a asset.Asset
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	return &a, nil
}

func encodeRaw(data []byte) []byte {
	out := make([]byte, 1, len(data)/2+16)
	out[0] = formatRaw
	return zstdEncoder.EncodeAll(data, out)
}

func decodeRaw(data []byte) ([]byte, error) {
	return unwrapFormat(data, formatRaw)
}

func unwrapFormat(data []byte, want byte) ([]byte, error) {
	if len(data) == 0 || data[0] != want {
		return nil, errFormatMismatch
	}
	body, err := zstdDecoder.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompress cache file: %w", err)
	}
	return body, nil
}
