package cli

const minimalSpecYAML = `
version: "1.0"
simulation_settings:
  random_seed: 7
  total_events: 5
  initial_entity_counts:
    User: 2
  time_progression:
    start_time: "2026-01-01T00:00:00Z"
    time_multiplier: 1.0
schemas:
  user:
    type: object
    properties:
      id:
        type: string
        generator: uuid_v4
      email:
        type: string
        generator: static
        params:
          value: "user@example.com"
entities:
  User:
    schema: user
    primary_key: id
event_types:
  UserSignedUp:
    payload_schema: user
    produces_entity: User
    frequency_weight: 1.0
outputs:
  - type: stdout
    enabled: true
    format: json
`
