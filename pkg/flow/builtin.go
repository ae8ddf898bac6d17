package flow

// Built-in action names.
const (
	ActionNavigate       = "navigate"
	ActionWait           = "wait"
	ActionWaitForElement = "wait_for_element"
	ActionClick          = "click"
	ActionType           = "type"
	ActionSelect         = "select"
	ActionMakeRequest    = "make_request"
	ActionStoreXPath     = "store_xpath"
	ActionStorePageURL   = "store_page_url"
	ActionRunBot         = "run_bot"
	ActionIterateOver    = "iterate_over"
	ActionConditional    = "conditional"
)

var builtins = map[string]Constructor{
	ActionNavigate:       func() Action { return navigateAction{} },
	ActionWait:           func() Action { return waitAction{} },
	ActionWaitForElement: func() Action { return waitForElementAction{} },
	ActionClick:          func() Action { return clickAction{} },
	ActionType:           func() Action { return typeAction{} },
	ActionSelect:         func() Action { return selectAction{} },
	ActionMakeRequest:    func() Action { return makeRequestAction{} },
	ActionStoreXPath:     func() Action { return storeXPathAction{} },
	ActionStorePageURL:   func() Action { return storePageURLAction{} },
	ActionRunBot:         func() Action { return runBotAction{} },
	ActionIterateOver:    func() Action { return iterateOverAction{} },
	ActionConditional:    func() Action { return conditionalAction{} },
}
