package config

// CronConfig schedules Sentinel's two internal maintenance tasks.
// Both are cron expressions (robfig/cron syntax, seconds optional);
// an empty expression disables that task.
type CronConfig struct {
	AuditRotation    string `yaml:"audit_rotation"`
	SkillRediscovery string `yaml:"skill_rediscovery"`
	Timezone         string `yaml:"timezone"`
}
