package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

func TestCompile(t *testing.T) {
	eval, err := Compile("revenue - cost")
	require.NoError(t, err)
	assert.Equal(t, "revenue - cost", eval.Source())
}

func TestCompile_Errors(t *testing.T) {
	cases := []string{
		"",
		"revenue -",
		"1 +* 2",
		"(revenue",
	}
	for _, src := range cases {
		_, err := Compile(src)
		assert.Error(t, err, "formula %q should not compile", src)
	}
}

func TestEvaluate(t *testing.T) {
	eval, err := Compile("revenue - cost")
	require.NoError(t, err)

	got, err := eval.Evaluate(models.Row{"revenue": 100.0, "cost": 30.0})
	require.NoError(t, err)
	assert.Equal(t, 70.0, got)
}

func TestEvaluate_CoercesStringCells(t *testing.T) {
	// CSV imports store numeric cells as strings; formulas must still
	// compute over them.
	eval, err := Compile("price * quantity")
	require.NoError(t, err)

	got, err := eval.Evaluate(models.Row{"price": "9.50", "quantity": "4"})
	require.NoError(t, err)
	assert.Equal(t, 38.0, got)
}

func TestEvaluate_MissingField(t *testing.T) {
	eval, err := Compile("revenue - cost")
	require.NoError(t, err)

	_, err = eval.Evaluate(models.Row{"revenue": 100.0})
	assert.Error(t, err)
}

func TestEvaluate_NonNumericResult(t *testing.T) {
	eval, err := Compile(`name + "!"`)
	require.NoError(t, err)

	_, err = eval.Evaluate(models.Row{"name": "Bob"})
	assert.Error(t, err)
}

func TestEvaluate_Conditionals(t *testing.T) {
	eval, err := Compile("total > 100 ? total * 0.9 : total")
	require.NoError(t, err)

	discounted, err := eval.Evaluate(models.Row{"total": 200.0})
	require.NoError(t, err)
	assert.Equal(t, 180.0, discounted)

	full, err := eval.Evaluate(models.Row{"total": 50.0})
	require.NoError(t, err)
	assert.Equal(t, 50.0, full)
}

func TestDependencies(t *testing.T) {
	deps, err := Dependencies("revenue - cost * (1 + tax_rate)")
	require.NoError(t, err)
	assert.Equal(t, []string{"cost", "revenue", "tax_rate"}, deps)
}

func TestDependencies_Deduplicates(t *testing.T) {
	deps, err := Dependencies("spend + spend * margin")
	require.NoError(t, err)
	assert.Equal(t, []string{"margin", "spend"}, deps)
}

func TestDependencies_InsideCalls(t *testing.T) {
	deps, err := Dependencies("max(clv, floor(total_spent))")
	require.NoError(t, err)
	assert.Contains(t, deps, "clv")
	assert.Contains(t, deps, "total_spent")
}

func TestDependencies_Invalid(t *testing.T) {
	_, err := Dependencies("revenue -")
	assert.Error(t, err)
}

func TestEnv_ExposesNumbersAsFloats(t *testing.T) {
	env := Env(models.Row{"price": "12.5", "name": "Widget", "count": 3})

	assert.Equal(t, 12.5, env["price"])
	assert.Equal(t, "Widget", env["name"])
	assert.Equal(t, 3.0, env["count"])
}
