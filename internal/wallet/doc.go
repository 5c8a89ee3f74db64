// Package wallet 负责为每个 agent 维护唯一且配置正确的链上钱包。
//
// Provisioner 比较 agent 前后两次配置，按钱包类型分派给对应的 Adapter，
// 并把各步骤的中间状态持久化到 Store，使失败的流程可以从最后一个检查点恢复。
// 钱包类型一旦确定不可更改，地址最多写入一次。
package wallet
