package models

import "time"

// CredentialKind тип выдаваемого ключа доступа.
type CredentialKind string

const (
	CredentialOutline CredentialKind = "outline"
	CredentialV2Ray   CredentialKind = "v2ray"
	CredentialAmnezia CredentialKind = "amnezia"
)

// CredentialKinds фиксированный набор поддерживаемых ключей.
var CredentialKinds = []CredentialKind{CredentialOutline, CredentialV2Ray, CredentialAmnezia}

func (k CredentialKind) Valid() bool {
	for _, known := range CredentialKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SystemActor — значение UpdatedBy для изменений, сделанных планировщиком.
const SystemActor int64 = 0

// Credentials — выданные пользователю ключи. Отсутствие kind в Secrets означает,
// что ключ ещё не выдан (или был отозван).
type Credentials struct {
	UserID    int64                     `json:"user_id"`
	Secrets   map[CredentialKind]string `json:"secrets"`
	UpdatedAt *time.Time                `json:"updated_at,omitempty"`
	UpdatedBy *int64                    `json:"updated_by,omitempty"`
}

// Kinds возвращает выданные типы ключей в порядке CredentialKinds.
func (c *Credentials) Kinds() []CredentialKind {
	var out []CredentialKind
	for _, k := range CredentialKinds {
		if _, ok := c.Secrets[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
