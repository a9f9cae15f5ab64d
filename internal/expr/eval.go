package expr

import "github.com/shopspring/decimal"

// Value is one evaluated cell. Absent values behave as zero inside
// arithmetic but keep their absence when they reach the output directly.
type Value struct {
	Num    float64
	Absent bool
}

// Env resolves a placeholder name for the current row or column. The second
// return reports whether the name is known at all; unknown names evaluate
// to zero and are reported through the missing callback.
type Env func(name string) (Value, bool)

// Eval evaluates the expression against env. missing, when non-nil, is
// invoked once per unknown placeholder occurrence.
func (e *Expression) Eval(env Env, missing func(name string)) Value {
	return e.root.eval(env, missing)
}

func (n numberNode) eval(Env, func(string)) Value {
	return Value{Num: float64(n)}
}

func (n placeholderNode) eval(env Env, missing func(string)) Value {
	value, ok := env(string(n))
	if !ok {
		if missing != nil {
			missing(string(n))
		}
		return Value{}
	}
	return value
}

func (n unaryNode) eval(env Env, missing func(string)) Value {
	inner := n.operand.eval(env, missing)
	return Value{Num: -inner.Num, Absent: inner.Absent}
}

func (n binaryNode) eval(env Env, missing func(string)) Value {
	left := n.left.eval(env, missing)
	right := n.right.eval(env, missing)

	switch n.op {
	case "+":
		return Value{Num: left.Num + right.Num}
	case "-":
		return Value{Num: left.Num - right.Num}
	case "*":
		return Value{Num: left.Num * right.Num}
	case "/":
		// Division by zero yields an absent cell, which downstream
		// aggregation treats as zero rather than an error.
		if right.Num == 0 || right.Absent {
			return Value{Absent: true}
		}
		return Value{Num: left.Num / right.Num}
	case "<":
		return boolValue(left.Num < right.Num)
	case "<=":
		return boolValue(left.Num <= right.Num)
	case ">":
		return boolValue(left.Num > right.Num)
	case ">=":
		return boolValue(left.Num >= right.Num)
	case "==":
		return boolValue(left.Num == right.Num)
	case "!=":
		return boolValue(left.Num != right.Num)
	case "&&":
		return boolValue(left.Num != 0 && right.Num != 0)
	case "||":
		return boolValue(left.Num != 0 || right.Num != 0)
	}
	return Value{Absent: true}
}

func boolValue(b bool) Value {
	if b {
		return Value{Num: 1}
	}
	return Value{Num: 0}
}

// Round rounds half away from zero to the given number of decimal places,
// matching how monetary values are presented elsewhere in the portal.
func Round(v float64, places int) float64 {
	rounded, _ := decimal.NewFromFloat(v).Round(int32(places)).Float64()
	return rounded
}
