package audio

import "errors"

// 管道各阶段的错误种类。上传阶段的错误会中止整个上传并原样暴露给调用方；
// 播放阶段除合成失败外都按"排除该片段"降级处理。
var (
	// ErrUploadUnreadable 上传的临时文件不存在或不可读
	ErrUploadUnreadable = errors.New("upload file unreadable")

	// ErrTrimEngineFailure 裁剪静音时处理引擎执行失败
	ErrTrimEngineFailure = errors.New("trim engine failure")

	// ErrTrimResultDegenerate 裁剪后产物过小，整段录音基本是静音
	ErrTrimResultDegenerate = errors.New("recording empty or too short after trimming")

	// ErrProbeFailure 结构探测失败，片段会被排除而不是让请求失败
	ErrProbeFailure = errors.New("clip probe failure")

	// ErrCompositionEngineFailure 合成过程中处理引擎执行失败
	ErrCompositionEngineFailure = errors.New("composition engine failure")

	// ErrNoEligibleClips 目前没有可播放的片段，属于正常空状态而非服务错误
	ErrNoEligibleClips = errors.New("no eligible clips")

	// ErrStoreIO 片段仓库读写失败
	ErrStoreIO = errors.New("clip store io failure")
)
