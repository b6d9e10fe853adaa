package sqlinline

const QInsertLibraryAsset = `--sql 9321d7ad-6dd5-495a-a01f-3d471cc9f757
insert into library_assets (id, owner_id, task_id, sequence_id, shot_number, storage_key, format, size_bytes, duration_seconds, created_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
on conflict (task_id, shot_number)
do update set storage_key = excluded.storage_key,
              size_bytes = excluded.size_bytes,
              duration_seconds = excluded.duration_seconds;
`

const QSelectLibraryAssetsByTask = `--sql 876e0bfa-b133-4b33-b703-0e4f95f60254
select id, owner_id, task_id, sequence_id, shot_number, storage_key, format, size_bytes, duration_seconds, created_at
from library_assets
where task_id = $1
order by shot_number asc;
`
