package browser

import (
	"fmt"
	"strings"
)

type Strategy string

const (
	StrategyID      Strategy = "id"
	StrategyCSS     Strategy = "css"
	StrategyXPath   Strategy = "xpath"
	StrategyTagName Strategy = "tag name"
	StrategyName    Strategy = "name"
)

// Locator describes how to find DOM nodes. The harness never looks inside it;
// only the Driver translates it into a query.
type Locator struct {
	Strategy Strategy
	Selector string
}

func ByID(id string) Locator { return Locator{Strategy: StrategyID, Selector: id} }
func ByCSS(selector string) Locator { return Locator{Strategy: StrategyCSS, Selector: selector} }
func ByXPath(expr string) Locator { return Locator{Strategy: StrategyXPath, Selector: expr} }
func ByTagName(tag string) Locator { return Locator{Strategy: StrategyTagName, Selector: tag} }
func ByName(name string) Locator { return Locator{Strategy: StrategyName, Selector: name} }

func (l Locator) String() string {
	return fmt.Sprintf("By(%s, %s)", l.Strategy, l.Selector)
}

// Template is a locator with a single {0} placeholder, filled in per use.
type Template struct {
	Strategy Strategy
	Pattern  string
}

func (t Template) With(value string) Locator {
	return Locator{Strategy: t.Strategy, Selector: strings.ReplaceAll(t.Pattern, "{0}", value)}
}
