package session

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hitoshi/pinkmuse/internal/identity"
)

const (
	defaultDisplayName = "Usuario PinkMuse"
	defaultEmail       = "Sin correo registrado"
	defaultRole        = "Miembro"
	defaultInitials    = "UP"
)

// Identity は現在のユーザーの正規化済みIDと表示用の情報をまとめたもの。
type Identity struct {
	ID              string `json:"id"`
	Nombre          string `json:"nombre"`
	Apellido        string `json:"apellido"`
	DisplayName     string `json:"displayName"`
	Initials        string `json:"initials"`
	Avatar          string `json:"avatar"`
	Correo          string `json:"correo"`
	Rol             string `json:"rol"`
	Username        string `json:"username"`
	Telefono        string `json:"telefono"`
	Nacionalidad    string `json:"nacionalidad"`
	FechaNacimiento string `json:"fechaNacimiento"`
}

// NormalizeUser はAPIのユーザー表現（フィールド名が揺れる）を正規化する。
// オブジェクトでない入力にはfalseを返す。
func NormalizeUser(raw []byte) (Identity, bool) {
	if !gjson.ValidBytes(raw) {
		return Identity{}, false
	}
	user := gjson.ParseBytes(raw)
	if !user.IsObject() {
		return Identity{}, false
	}

	nombre := pickString(user, "nombre", "name")
	apellido := pickString(user, "apellido", "apellidos", "lastName", "lastname")
	correo := pickString(user, "correo", "email")
	username := pickString(user, "username", "perfil.username")

	rol := pickString(user, "rol", "rol.nombre", "rol.rol", "rol.displayName", "rol_id")
	if rol == "" {
		rol = defaultRole
	}

	displayName := strings.TrimSpace(joinNonEmpty(nombre, apellido))
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = correo
	}
	if displayName == "" {
		displayName = defaultDisplayName
	}

	if nombre == "" {
		nombre = defaultDisplayName
	}
	if correo == "" {
		correo = defaultEmail
	}

	return Identity{
		ID:              identity.ExtractUserID(raw),
		Nombre:          nombre,
		Apellido:        apellido,
		DisplayName:     displayName,
		Initials:        ComputeInitials(displayName),
		Avatar:          pickString(user, "perfil.imagenPrincipal", "perfil.avatar", "avatar", "foto", "image", "photo"),
		Correo:          correo,
		Rol:             rol,
		Username:        username,
		Telefono:        pickString(user, "telefono", "telefonoMovil", "telefono_movil", "phone", "celular", "mobile"),
		Nacionalidad:    pickString(user, "nacionalidad", "pais", "country", "nation"),
		FechaNacimiento: formatBirthDate(pickString(user, "fechaNacimiento", "fecha_nacimiento", "fechaNac", "fecha_nac", "birthDate", "birthdate")),
	}, true
}

// ComputeInitials は表示名の先頭2語の頭文字を大文字で返す。
// 2文字に満たない場合は "P" で埋める。
func ComputeInitials(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return defaultInitials
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strings.ToUpper(string([]rune(p)[:1])))
	}
	initials := b.String()
	for len([]rune(initials)) < 2 {
		initials += "P"
	}
	return initials
}

// pickString は指定パスを順に探索し、最初に見つかった空でない文字列をトリムして返す。
func pickString(obj gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := obj.Get(path)
		if v.Type == gjson.String {
			if s := strings.TrimSpace(v.Str); s != "" {
				return s
			}
		}
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// formatBirthDate は日付として解釈できる値をYYYY-MM-DDに整形する。
// 解釈できない場合は入力をそのまま返す。
func formatBirthDate(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}
