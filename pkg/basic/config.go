package basic

import (
	"strings"

	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
)

// LimitsFromConfig reads the [Interpreter] section. Missing or invalid keys
// keep their DefaultLimits value.
func LimitsFromConfig() Limits {
	l := DefaultLimits()
	const sec = "Interpreter"
	l.MaxVariables = positive(configuration.GetInt(sec, "max_variables", l.MaxVariables), l.MaxVariables)
	l.MaxCallDepth = positive(configuration.GetInt(sec, "max_call_depth", l.MaxCallDepth), l.MaxCallDepth)
	l.MaxGosubDepth = positive(configuration.GetInt(sec, "max_gosub_depth", l.MaxGosubDepth), l.MaxGosubDepth)
	l.MaxForLoops = positive(configuration.GetInt(sec, "max_for_loops", l.MaxForLoops), l.MaxForLoops)
	l.MaxDoLoops = positive(configuration.GetInt(sec, "max_do_loops", l.MaxDoLoops), l.MaxDoLoops)
	l.MaxExprDepth = positive(configuration.GetInt(sec, "max_expression_depth", l.MaxExprDepth), l.MaxExprDepth)
	l.MaxArrayElements = positive(configuration.GetInt(sec, "max_array_elements", l.MaxArrayElements), l.MaxArrayElements)
	l.ScratchSize = positive(configuration.GetInt(sec, "scratch_size_kb", l.ScratchSize/1024), l.ScratchSize/1024) * 1024

	switch t := strings.ToUpper(configuration.GetString(sec, "default_type", "FLOAT")); t {
	case "FLOAT":
		l.DefaultType = TypeFloat
	case "INTEGER":
		l.DefaultType = TypeInt
	case "STRING":
		l.DefaultType = TypeString
	case "NONE":
		l.DefaultType = TypeNone
	default:
		logger.ConfigWarn("unknown default_type %q, using FLOAT", t)
	}

	if base := configuration.GetInt(sec, "option_base", 0); base == 0 || base == 1 {
		l.OptionBase = base
	}
	l.Trace = configuration.GetBool(sec, "trace", false)
	return l
}

func positive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
