package stats

import (
	"bytes"
	"fmt"
	"testing"
)

/*
Utilities for validating stats registry contents in tests.
Add new checker functions here as needed.
*/
type RuleChecker struct {
	name    string
	checker func(got, expected interface{}) bool
}

func nilCheck(a, b interface{}) (nilFound, eqValues bool) {
	if a == nil && b == nil {
		return true, true
	}
	if a == nil || b == nil {
		return true, false
	}
	return false, false
}

/*
errors if got is not int64 (counters and gauges marshal as int64), true if got == expected
*/
func int64EqTest(a, b interface{}) bool {
	if nilFound, eqValue := nilCheck(a, b); nilFound {
		return eqValue
	}
	return a.(int64) == int64(b.(int))
}

var Int64EqTest = RuleChecker{name: "int64EqTest", checker: int64EqTest}

/*
errors if got is not float64 (histogram aggregates marshal as float64), true if got == expected
*/
func floatEqTest(a, b interface{}) bool {
	if nilFound, eqValue := nilCheck(a, b); nilFound {
		return eqValue
	}
	return a.(float64) == b.(float64)
}

var FloatEqTest = RuleChecker{name: "floatEqTest", checker: floatEqTest}

/*
errors if got is not float64, true if got > expected
*/
func floatGTTest(a, b interface{}) bool {
	if nilFound, eqValue := nilCheck(a, b); nilFound {
		return eqValue
	}
	return a.(float64) > b.(float64)
}

var FloatGTTest = RuleChecker{name: "floatGTTest", checker: floatGTTest}

func doesNotExistTest(a, b interface{}) bool {
	return a == nil
}

var DoesNotExistTest = RuleChecker{name: "doesNotExistTest", checker: doesNotExistTest}

/*
Rule pairs the checker with the expected value. Each checker(got, expected)
implementation receives the marshaled registry entry as got.
*/
type Rule struct {
	Checker RuleChecker
	Value   interface{}
}

/*
VerifyStats checks that the registry entry under each key in contains
conforms to the rule associated with that key.
*/
func VerifyStats(tag string, statsRegistry StatsRegistry, t *testing.T, contains map[string]Rule) {
	asJSONRegistry, ok := statsRegistry.(*jsonStatsRegistry)
	if !ok {
		t.Errorf("%s: stats registry is a %T, not a jsonStatsRegistry", tag, statsRegistry)
		return
	}

	err := false
	var msg bytes.Buffer
	msg.WriteString(tag)
	msg.WriteString(":stats registry error:\n")

	data := asJSONRegistry.marshalAll()
	for key, rule := range contains {
		gotValue := data[key]
		if rule.Checker.checker(gotValue, rule.Value) {
			continue
		}
		err = true
		if rule.Checker.name == DoesNotExistTest.name {
			msg.WriteString(fmt.Sprintf("%s: found stat entry when there should not be one\n", key))
		} else {
			msg.WriteString(fmt.Sprintf("%s: got %v, expected to pass %s with %v\n", key, gotValue, rule.Checker.name, rule.Value))
		}
	}
	if err {
		t.Error(msg.String())
		PPrintStats(tag, asJSONRegistry)
	}
}

func PPrintStats(tag string, statsRegistry StatsRegistry) {
	asJSONRegistry, ok := statsRegistry.(*jsonStatsRegistry)
	if !ok {
		return
	}
	regBytes, _ := asJSONRegistry.MarshalJSONPretty()
	fmt.Printf("%s: Stats Registry:\n%s\n", tag, regBytes)
}
