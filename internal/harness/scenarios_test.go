package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/specmodel"
	"github.com/roach88/resinker/internal/value"
)

func loadSpec(t *testing.T, doc string) *specmodel.Spec {
	t.Helper()
	spec, err := specmodel.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return spec
}

// TestOnboardingThenLoginFlipsState verifies UserRegistered produces a
// User, then UserLoggedIn consumes it and flips is_logged_in.
func TestOnboardingThenLoginFlipsState(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 42
  total_events: 2
  initial_entity_counts:
    User: 0
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  user:
    type: object
    properties:
      user_id:
        type: string
        generator: uuid_v4
  login:
    type: object
    properties:
      user_id:
        type: string
        from_entity: user
        field: user_id
entities:
  User:
    schema: user
    primary_key: user_id
    state_attributes:
      is_logged_in:
        type: bool
        default: false
event_types:
  UserRegistered:
    payload_schema: user
    produces_entity: User
    frequency_weight: 10
  UserLoggedIn:
    payload_schema: login
    frequency_weight: 30
    consumes_entities:
      - name: User
        alias: user
        min_required: 1
        selection_filter:
          - field: state.is_logged_in
            operator: equals
            value: false
    updates_entity_state:
      - entity_alias: user
        set_attributes:
          is_logged_in: true
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 2)

	assert.Equal(t, "UserRegistered", outcome.Records[0].EventType)
	assert.Equal(t, "UserLoggedIn", outcome.Records[1].EventType)

	registeredID, ok := outcome.Records[0].Payload.Get("user_id")
	require.True(t, ok)
	loginID, ok := outcome.Records[1].Payload.Get("user_id")
	require.True(t, ok)
	assert.Equal(t, registeredID, loginID)

	users := outcome.Store.All("User")
	require.Len(t, users, 1)
	loggedIn, ok := users[0].State.Get("is_logged_in")
	require.True(t, ok)
	assert.Equal(t, value.Bool(true), loggedIn)
}

// TestUnsatisfiableFilterStarvesRun verifies that with zero initial Users
// and only UserLoggedIn declared, no event is ever feasible and the run
// starves.
func TestUnsatisfiableFilterStarvesRun(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 1
  total_events: 5
  initial_entity_counts:
    User: 0
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  login:
    type: object
    properties:
      user_id:
        type: string
        from_entity: user
        field: user_id
entities:
  User:
    schema: login
    primary_key: user_id
    state_attributes:
      is_logged_in:
        type: bool
        default: false
event_types:
  UserLoggedIn:
    payload_schema: login
    frequency_weight: 30
    consumes_entities:
      - name: User
        alias: user
        min_required: 1
        selection_filter:
          - field: state.is_logged_in
            operator: equals
            value: false
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	assert.Empty(t, outcome.Records)
	assert.Equal(t, scheduler.TerminationStarved, outcome.Result.TerminationReason)
}

// TestScenarioStepsShareBoundContext verifies a three-step scenario
// emits its steps in order, with a stable user_id and a state update
// visible at the final step.
func TestScenarioStepsShareBoundContext(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 7
  total_events: 3
  initial_entity_counts:
    Product: 1
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  user:
    type: object
    properties:
      user_id:
        type: string
        generator: uuid_v4
  login:
    type: object
    properties:
      user_id:
        type: string
        from_entity: user
        field: user_id
  product:
    type: object
    properties:
      product_id:
        type: string
        generator: uuid_v4
  purchase:
    type: object
    properties:
      user_id:
        type: string
        from_entity: user
        field: user_id
      total_amount:
        type: number
        generator: static
        params:
          value: 42.5
entities:
  User:
    schema: user
    primary_key: user_id
    state_attributes:
      total_purchase_value:
        type: number
        default: 0
  Product:
    schema: product
    primary_key: product_id
event_types:
  UserRegistered:
    payload_schema: user
    produces_entity: User
    frequency_weight: 1
  UserLoggedIn:
    payload_schema: login
    frequency_weight: 1
    consumes_entities:
      - name: User
        alias: user
        min_required: 1
  UserPurchasedProducts:
    payload_schema: purchase
    frequency_weight: 1
    consumes_entities:
      - name: User
        alias: user
        min_required: 1
    updates_entity_state:
      - entity_alias: user
        set_attributes:
          total_purchase_value: 42.5
scenarios:
  NewUserOnboardingAndFirstPurchase:
    initiation_weight: 1000
    steps:
      - event_type: UserRegistered
      - event_type: UserLoggedIn
      - event_type: UserPurchasedProducts
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 3)

	assert.Equal(t, "UserRegistered", outcome.Records[0].EventType)
	assert.Equal(t, "UserLoggedIn", outcome.Records[1].EventType)
	assert.Equal(t, "UserPurchasedProducts", outcome.Records[2].EventType)

	registeredID, _ := outcome.Records[0].Payload.Get("user_id")
	loginID, _ := outcome.Records[1].Payload.Get("user_id")
	purchaseID, _ := outcome.Records[2].Payload.Get("user_id")
	assert.Equal(t, registeredID, loginID)
	assert.Equal(t, registeredID, purchaseID)

	totalAmount, _ := outcome.Records[2].Payload.Get("total_amount")
	users := outcome.Store.All("User")
	require.Len(t, users, 1)
	stateTotal, ok := users[0].State.Get("total_purchase_value")
	require.True(t, ok)
	assert.Equal(t, totalAmount, stateTotal)
}

// TestDerivedExpressionSumsArrayItems verifies a sum-over-array-items
// derived expression rounds to the declared precision.
func TestDerivedExpressionSumsArrayItems(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 99
  total_events: 1
  initial_entity_counts: {}
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  line_item:
    type: object
    properties:
      quantity:
        type: integer
        generator: static
        params:
          value: 2
      unit_price:
        type: number
        generator: static
        params:
          value: 10.00
  purchase:
    type: object
    properties:
      items:
        type: array
        min_items: 2
        max_items: 2
        items:
          $ref: line_item
      total_amount:
        type: number
        generator: derived
        params:
          precision: 2
          expression: "sum(item['quantity'] * item['unit_price'] for item in items)"
entities: {}
event_types:
  UserPurchasedProducts:
    payload_schema: purchase
    frequency_weight: 1
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 1)

	items, ok := outcome.Records[0].Payload.Get("items")
	require.True(t, ok)
	arr, ok := items.(value.Array)
	require.True(t, ok)
	require.Len(t, arr, 2)

	totalAmount, ok := outcome.Records[0].Payload.Get("total_amount")
	require.True(t, ok)
	// Two items of quantity=2, unit_price=10.00 each: sum = 40.00.
	assert.Equal(t, value.Float(40.0), totalAmount)
}

// TestConditionalChoiceWeightsConverge verifies shipping_method depends
// on total_amount > 50, choosing between two options with weights
// [0.8, 0.2]. Over 10,000 purchases with total_amount > 50, the observed
// frequency of "Free Standard Shipping" should land within +/-0.02 of
// 0.80.
func TestConditionalChoiceWeightsConverge(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 2024
  total_events: 10000
  initial_entity_counts: {}
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  purchase:
    type: object
    properties:
      total_amount:
        type: number
        generator: random_float
        params:
          min: 51
          max: 200
          precision: 2
      shipping_method:
        type: string
        generator: conditional_choice
        params:
          condition_field: total_amount
          cases:
            - condition_value_greater_than: 50
              choices: ["Free Standard Shipping", "Expedited Shipping"]
              weights: [0.8, 0.2]
            - default: true
              choices: ["Expedited Shipping"]
              weights: [1.0]
entities: {}
event_types:
  UserPurchasedProducts:
    payload_schema: purchase
    frequency_weight: 1
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 10000)

	qualifying := 0
	free := 0
	for _, rec := range outcome.Records {
		amount, ok := rec.Payload.Get("total_amount")
		require.True(t, ok)
		amountFloat, ok := amount.(value.Float)
		require.True(t, ok)
		if float64(amountFloat) <= 50 {
			continue
		}
		qualifying++
		method, ok := rec.Payload.Get("shipping_method")
		require.True(t, ok)
		if method == value.String("Free Standard Shipping") {
			free++
		}
	}

	require.Greater(t, qualifying, 0)
	observed := float64(free) / float64(qualifying)
	assert.InDelta(t, 0.80, observed, 0.02)
}

// TestMaxActiveInstancesCapEnforced verifies that with
// max_active_instances_of_state{User, is_logged_in, true, 3} and ten
// eligible Users, no more than three concurrently carry
// is_logged_in = true.
func TestMaxActiveInstancesCapEnforced(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 5
  total_events: 30
  initial_entity_counts:
    User: 10
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  user:
    type: object
    properties:
      user_id:
        type: string
        generator: uuid_v4
  login:
    type: object
    properties:
      user_id:
        type: string
        from_entity: user
        field: user_id
entities:
  User:
    schema: user
    primary_key: user_id
    state_attributes:
      is_logged_in:
        type: bool
        default: false
event_types:
  UserLoggedIn:
    payload_schema: login
    frequency_weight: 1
    max_active_instances_of_state:
      entity: User
      attribute: is_logged_in
      value: true
      max_count: 3
    consumes_entities:
      - name: User
        alias: user
        min_required: 1
        selection_filter:
          - field: state.is_logged_in
            operator: equals
            value: false
    updates_entity_state:
      - entity_alias: user
        set_attributes:
          is_logged_in: true
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	activeCount := outcome.Store.CountWhere("User", "is_logged_in", true)
	assert.LessOrEqual(t, activeCount, 3)
}

// TestArrayItemFromEntityBindsDistinctInstances verifies that
// items[].product_id with from_entity: Product, bound against multiple
// consumed Products, gives each array item a distinct Product instead of
// repeating whichever single instance the event-wide binding resolved.
func TestArrayItemFromEntityBindsDistinctInstances(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 3
  total_events: 1
  initial_entity_counts:
    Product: 2
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  product:
    type: object
    properties:
      product_id:
        type: string
        generator: uuid_v4
  line_item:
    type: object
    properties:
      product_id:
        type: string
        from_entity: Product
        field: product_id
  purchase:
    type: object
    properties:
      items:
        type: array
        min_items: 2
        max_items: 2
        items:
          $ref: line_item
entities:
  Product:
    schema: product
    primary_key: product_id
event_types:
  UserPurchasedProducts:
    payload_schema: purchase
    frequency_weight: 1
    consumes_entities:
      - name: Product
        alias: products
        min_required: 2
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 1)

	products := outcome.Store.All("Product")
	require.Len(t, products, 2)
	product0ID, _ := products[0].Payload.Get("product_id")
	product1ID, _ := products[1].Payload.Get("product_id")
	require.NotEqual(t, product0ID, product1ID)

	items, ok := outcome.Records[0].Payload.Get("items")
	require.True(t, ok)
	arr, ok := items.(value.Array)
	require.True(t, ok)
	require.Len(t, arr, 2)

	item0, ok := arr[0].(*value.Object)
	require.True(t, ok)
	item1, ok := arr[1].(*value.Object)
	require.True(t, ok)
	item0ID, _ := item0.Get("product_id")
	item1ID, _ := item1.Get("product_id")

	assert.Equal(t, product0ID, item0ID)
	assert.Equal(t, product1ID, item1ID)
	assert.NotEqual(t, item0ID, item1ID)
}

// TestIncrementAttributesNegateConservesMagnitude verifies that an
// increment_attributes entry with negate: true decrements a state
// attribute by the same magnitude a non-negated increment of the same
// from_payload_field value would add — so a deposit followed by an
// equal, negated withdrawal restores the original balance.
func TestIncrementAttributesNegateConservesMagnitude(t *testing.T) {
	spec := loadSpec(t, `
version: "1.0"
simulation_settings:
  random_seed: 11
  total_events: 2
  initial_entity_counts:
    Account: 1
  time_progression:
    start_time: "now"
    time_multiplier: 1.0
schemas:
  account:
    type: object
    properties:
      account_id:
        type: string
        generator: uuid_v4
  transaction:
    type: object
    properties:
      account_id:
        type: string
        from_entity: Account
        field: account_id
      amount:
        type: number
        generator: static
        params:
          value: 25
entities:
  Account:
    schema: account
    primary_key: account_id
    state_attributes:
      balance:
        type: number
        default: 100
event_types:
  FundsDeposited:
    payload_schema: transaction
    frequency_weight: 1
    consumes_entities:
      - name: Account
        alias: account
        min_required: 1
    updates_entity_state:
      - entity_alias: account
        increment_attributes:
          balance:
            from_payload_field: amount
  FundsWithdrawn:
    payload_schema: transaction
    frequency_weight: 1
    consumes_entities:
      - name: Account
        alias: account
        min_required: 1
    updates_entity_state:
      - entity_alias: account
        increment_attributes:
          balance:
            from_payload_field: amount
            negate: true
scenarios:
  DepositThenWithdraw:
    initiation_weight: 1000
    steps:
      - event_type: FundsDeposited
      - event_type: FundsWithdrawn
outputs:
  - type: stdout
    enabled: true
    format: json
`)

	outcome, err := Run(spec)
	require.NoError(t, err)
	require.Len(t, outcome.Records, 2)

	assert.Equal(t, "FundsDeposited", outcome.Records[0].EventType)
	assert.Equal(t, "FundsWithdrawn", outcome.Records[1].EventType)

	accounts := outcome.Store.All("Account")
	require.Len(t, accounts, 1)
	balance, ok := accounts[0].State.Get("balance")
	require.True(t, ok)
	assert.Equal(t, value.Float(100), balance)
}
