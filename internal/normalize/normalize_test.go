package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace collapse", "  โค้ก   325  มล. ", "โคก 325 มล"},
		{"ascii lowercased", "Coke Zero 325ML", "coke zero 325ml"},
		{"punctuation stripped", "น้ำดื่ม (ขวด) - 12", "น้ำดื่ม ขวด 12"},
		{"strawberry variants fold", "สตรอว์เบอร์รี่ 500 กรัม", "สตอเบอรี่ 500 กรัม"},
		{"water variant folds", "น้ำเปล่า 12 ขวด", "น้ำดื่ม 12 ขวด"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fold(tt.in))
		})
	}
}

func TestFoldIsStable(t *testing.T) {
	once := Fold("โค้ก แพ็ค 6 กระป๋อง")
	assert.Equal(t, once, Fold(once), "folding must be idempotent")
}

func TestAddVariant(t *testing.T) {
	AddVariant("โออิชิกรีนที", "ชาเขียว")
	assert.Equal(t, "ชาเขียว 500 มล", Fold("โออิชิกรีนที 500 มล."))
}
