package sqlinline

const QSelectIntegrationToken = `--sql 81847394-f3ba-474d-8b7e-bcecdae81117
select token
from integration_tokens
where provider = $1
order by updated_at desc
limit 1;
`

const QUpsertIntegrationToken = `--sql 9a9e57ab-230f-44e9-8d12-f148393c9924
insert into integration_tokens (provider, token, properties, updated_at)
values ($1, $2, $3, now())
on conflict (provider)
do update set token = excluded.token, properties = excluded.properties, updated_at = now();
`
