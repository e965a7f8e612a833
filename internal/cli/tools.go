package cli

import (
	"fmt"
	"time"

	"github.com/hupe1980/replanmesh/core"
	"github.com/hupe1980/replanmesh/tool"
)

type clockArgs struct {
	Location string `json:"location" description:"IANA time zone such as Europe/Berlin, or UTC"`
}

type calculatorArgs struct {
	A  float64 `json:"a" description:"Left operand"`
	B  float64 `json:"b" description:"Right operand"`
	Op string  `json:"op" enum:"add,sub,mul,div" description:"Operation"`
}

// builtinTools are the tools offered to the planner by the CLI.
func builtinTools() []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionToolFromStruct("clock", "Current local time for a time zone", clockArgs{}, clock),
		tool.NewFunctionToolFromStruct("calculator", "Basic arithmetic on two numbers", calculatorArgs{}, calculate),
	}
}

func clock(_ *core.ToolContext, args map[string]any) (any, error) {
	name, _ := args["location"].(string)
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", name)
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}

func calculate(_ *core.ToolContext, args map[string]any) (any, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)

	switch args["op"] {
	case "add":
		return a + b, nil
	case "sub":
		return a - b, nil
	case "mul":
		return a * b, nil
	case "div":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return a / b, nil
	default:
		return nil, fmt.Errorf("unsupported op %v", args["op"])
	}
}
