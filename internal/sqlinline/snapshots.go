package sqlinline

// The engine keeps its durable job snapshot in a small KV table: one row per
// well-known key, value is the serialized job array.

const QUpsertEngineKV = `--sql 8b4c9bfa-1118-4c2e-88f5-7385dbdaec67
insert into engine_kv (key, value, updated_at)
values ($1, $2, now())
on conflict (key)
do update set value = excluded.value, updated_at = now();
`

const QSelectEngineKV = `--sql 219d447a-1b69-46f5-ab0b-dc1daac171c5
select value
from engine_kv
where key = $1;
`
