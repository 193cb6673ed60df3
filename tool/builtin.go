package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Builtins returns the demo tools every server registers by default:
// exampleTool and anotherTool echo their parameters, add sums two numbers.
func Builtins() []Tool {
	return []Tool{
		NewFunctionTool("exampleTool", "Example tool that echoes the parameters it was invoked with.", nil, echo("exampleTool")),
		NewFunctionTool("anotherTool", "Another example tool that echoes the parameters it was invoked with.", nil, echo("anotherTool")),
		NewFunctionToolFromStruct("add", "Adds two numbers and returns the sum.", AddArgs{}, add),
	}
}

// AddArgs are the arguments of the add tool.
type AddArgs struct {
	A float64 `json:"a" description:"The first number"`
	B float64 `json:"b" description:"The second number"`
}

func echo(name string) Func {
	return func(_ context.Context, args map[string]any) (any, error) {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s invoked with params: %s", name, b), nil
	}
}

func add(_ context.Context, args map[string]any) (any, error) {
	return number(args["a"]) + number(args["b"]), nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
