package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	booleanFlagTypeName               = "bool"
	booleanFlagTrueLiteral            = "true"
	booleanFlagAcceptedValuesListing  = "true, false, yes, no, on, off, 1, 0"
	booleanFlagInvalidValueErrorLabel = "invalid boolean value"
	sourceFlagFalseValueFormat        = "--%s selects an input source and cannot be set to %q; omit the flag instead"
)

var booleanFlagLiterals = map[string]bool{
	"true":  true,
	"t":     true,
	"1":     true,
	"yes":   true,
	"y":     true,
	"on":    true,
	"false": false,
	"f":     false,
	"0":     false,
	"no":    false,
	"n":     false,
	"off":   false,
}

// booleanFlag describes a switch accepting the literals above as
// --name, --name=value or --name value.
type booleanFlag struct {
	name         string
	shorthand    string
	usage        string
	defaultValue bool

	// selectsSource marks a member of an exclusive password or message
	// group. Such a flag is either present or absent.
	selectsSource bool
}

type booleanFlagValue struct {
	target *bool
	flag   booleanFlag
}

func (value *booleanFlagValue) Set(input string) error {
	if value == nil || value.target == nil {
		return fmt.Errorf("%s %q", booleanFlagInvalidValueErrorLabel, input)
	}
	parsed, parseErr := parseBooleanLiteral(input)
	if parseErr != nil {
		return fmt.Errorf("%s %q for --%s; accepted values: %s", booleanFlagInvalidValueErrorLabel, input, value.flag.name, booleanFlagAcceptedValuesListing)
	}
	if !parsed && value.flag.selectsSource {
		return fmt.Errorf(sourceFlagFalseValueFormat, value.flag.name, input)
	}
	*value.target = parsed
	return nil
}

func (value *booleanFlagValue) String() string {
	if value == nil || value.target == nil {
		return strconv.FormatBool(false)
	}
	return strconv.FormatBool(*value.target)
}

func (value *booleanFlagValue) Type() string {
	return booleanFlagTypeName
}

func parseBooleanLiteral(input string) (bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return true, nil
	}
	parsed, known := booleanFlagLiterals[normalized]
	if !known {
		return false, strconv.ErrSyntax
	}
	return parsed, nil
}

func registerBooleanFlag(flagSet *pflag.FlagSet, target *bool, flag booleanFlag) {
	if flagSet == nil || target == nil {
		return
	}
	*target = flag.defaultValue
	flagSet.VarP(&booleanFlagValue{target: target, flag: flag}, flag.name, flag.shorthand, flag.usage)
	if registered := flagSet.Lookup(flag.name); registered != nil {
		registered.DefValue = strconv.FormatBool(flag.defaultValue)
		registered.NoOptDefVal = booleanFlagTrueLiteral
	}
}

// normalizeBooleanFlagArguments joins "--name value" into "--name=value"
// when name is a boolean flag and value a boolean literal, since pflag
// otherwise treats the literal as a positional argument.
func normalizeBooleanFlagArguments(command *cobra.Command, arguments []string) []string {
	if command == nil || len(arguments) == 0 {
		return arguments
	}
	booleanFlags := map[string]struct{}{}
	collectBooleanFlagNames(command, booleanFlags)
	if len(booleanFlags) == 0 {
		return arguments
	}
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		argument := arguments[index]
		if argument == "--" {
			return append(normalized, arguments[index:]...)
		}
		if index+1 < len(arguments) && isBareBooleanFlag(argument, booleanFlags) && isBooleanLiteral(arguments[index+1]) {
			normalized = append(normalized, argument+"="+arguments[index+1])
			index++
			continue
		}
		normalized = append(normalized, argument)
	}
	return normalized
}

func isBareBooleanFlag(argument string, booleanFlags map[string]struct{}) bool {
	if !strings.HasPrefix(argument, "--") || strings.Contains(argument, "=") {
		return false
	}
	_, known := booleanFlags[strings.TrimPrefix(argument, "--")]
	return known
}

func isBooleanLiteral(argument string) bool {
	if strings.HasPrefix(argument, "-") {
		return false
	}
	_, known := booleanFlagLiterals[strings.ToLower(strings.TrimSpace(argument))]
	return known
}

func collectBooleanFlagNames(command *cobra.Command, target map[string]struct{}) {
	if command == nil || target == nil {
		return
	}
	visit := func(flag *pflag.Flag) {
		if flag != nil && flag.Value != nil && flag.Value.Type() == booleanFlagTypeName {
			target[flag.Name] = struct{}{}
		}
	}
	command.PersistentFlags().VisitAll(visit)
	command.Flags().VisitAll(visit)
	for _, child := range command.Commands() {
		collectBooleanFlagNames(child, target)
	}
}
