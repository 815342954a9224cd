// Package asset describes the immutable, content-addressed objects served by the
// cache: textures, scripts, notecards, object serializations and friends. An
// Asset is identified by its ID (normally a UUID string) and never changes once
// published upstream, which is what makes aggressive caching safe.
package asset

import (
	"strings"

	"github.com/google/uuid"
)

// Type 是资产类型标签，数值与上游资产服务保持一致。
type Type int8

const (
	TypeUnknown     Type = -1
	TypeTexture     Type = 0
	TypeSound       Type = 1
	TypeCallingCard Type = 2
	TypeLandmark    Type = 3
	TypeClothing    Type = 5
	TypeObject      Type = 6
	TypeNotecard    Type = 7
	TypeLSLText     Type = 10
	TypeLSLBytecode Type = 11
	TypeBodypart    Type = 13
	TypeAnimation   Type = 20
	TypeGesture     Type = 21
	TypeMesh        Type = 49
	TypeSettings    Type = 56
	TypeMaterial    Type = 57
)

var typeNames = map[Type]string{
	TypeTexture:     "texture",
	TypeSound:       "sound",
	TypeCallingCard: "callingcard",
	TypeLandmark:    "landmark",
	TypeClothing:    "clothing",
	TypeObject:      "object",
	TypeNotecard:    "notecard",
	TypeLSLText:     "lsltext",
	TypeLSLBytecode: "lslbyte",
	TypeBodypart:    "bodypart",
	TypeAnimation:   "animation",
	TypeGesture:     "gesture",
	TypeMesh:        "mesh",
	TypeMaterial:    "material",
	TypeSettings:    "settings",
}

// String 返回类型的短名称，未知类型返回 "unknown"。
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsTextual 表示该类型的正文是否可能以文本形式内嵌其他资产 ID。
func (t Type) IsTextual() bool {
	switch t {
	case TypeObject, TypeNotecard, TypeLSLText, TypeClothing, TypeBodypart,
		TypeGesture, TypeMaterial, TypeSettings, TypeLandmark:
		return true
	}
	return false
}

// Asset 为缓存中的完整对象表示，包含元数据与正文。
type Asset struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Data        []byte `json:"data"`
	CreatorID   string `json:"creator_id"`
	Flags       uint32 `json:"flags"`
	Local       bool   `json:"local"`
	Temporary   bool   `json:"temporary"`
}

// Size 返回正文字节数，nil 资产视为 0。
func (a *Asset) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Clone 深拷贝资产，避免调用方修改缓存中共享的 Data 切片。
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return &cp
}

// IsValidID 判断 id 是否为合法的 UUID 形式资产 ID。
func IsValidID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// NormalizeID 将 UUID 统一为小写带连字符格式；非 UUID 保持原样（去除首尾空白）。
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
