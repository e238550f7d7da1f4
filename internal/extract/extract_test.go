package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcedureCalls(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "empty",
			text: "",
			want: []string{},
		},
		{
			name: "single call",
			text: "BEGIN exec usp_Load END",
			want: []string{"usp_Load"},
		},
		{
			name: "case insensitive anchor keeps captured case",
			text: "EXEC dbo.MyProc\nExEc other_Proc",
			want: []string{"dbo.MyProc", "other_Proc"},
		},
		{
			name: "duplicates in document order",
			text: "exec B; exec C; exec B",
			want: []string{"B", "C", "B"},
		},
		{
			name: "multiple whitespace and newlines",
			text: "exec \t\n  Proc1(",
			want: []string{"Proc1"},
		},
		{
			name: "name stops at first disallowed character",
			text: "exec Proc@param",
			want: []string{"Proc"},
		},
		{
			name: "execute keyword is not a match",
			text: "execute Proc1",
			want: []string{},
		},
		{
			name: "exec without name",
			text: "exec ;",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProcedureCalls(tt.text))
		})
	}
}

func TestFunctionReferences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "qualified call",
			text: "SELECT dbo.fnFoo(1)",
			want: []string{"dbo.fnFoo"},
		},
		{
			name: "case insensitive fn anchor",
			text: "select DBO.FNBar2(x), sales.Fn_x",
			want: []string{"DBO.FNBar2"},
		},
		{
			name: "unqualified is ignored",
			text: "SELECT fnFoo(1)",
			want: []string{},
		},
		{
			name: "duplicates kept",
			text: "dbo.fnA() + dbo.fnB() + dbo.fnA()",
			want: []string{"dbo.fnA", "dbo.fnB", "dbo.fnA"},
		},
		{
			name: "non fn identifiers",
			text: "SELECT dbo.table1.col FROM dbo.orders",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FunctionReferences(tt.text))
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	text := "exec A\nSELECT dbo.fnX()\nexec B\nSELECT dbo.fnY()"
	first := Extract(text)
	second := Extract(text)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"A", "B"}, first.Procedures)
	assert.Equal(t, []string{"dbo.fnX", "dbo.fnY"}, first.Functions)
}

func TestUnqualified(t *testing.T) {
	assert.Equal(t, "fnFoo", Unqualified("dbo.fnFoo"))
	assert.Equal(t, "fnFoo", Unqualified("fnFoo"))
	assert.Equal(t, "MyProc", Unqualified("dbo.MyProc"))
}
